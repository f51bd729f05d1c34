package agent

import (
	"context"
	"errors"
	"testing"
)

func TestNoopAgent_RunOnce(t *testing.T) {
	a := NewNoopAgent("/tmp/creds")
	ok, err := a.RunOnce(context.Background())
	if err != nil || !ok {
		t.Fatalf("RunOnce = (%v, %v), want (true, nil)", ok, err)
	}

	a.RunResult = false
	a.RunErr = errors.New("boom")
	ok, err = a.RunOnce(context.Background())
	if err == nil || ok {
		t.Fatalf("RunOnce = (%v, %v), want (false, err)", ok, err)
	}
}

func TestNoopAgent_LoginFlow(t *testing.T) {
	a := NewNoopAgent("/tmp/creds")
	a.Login = LoginLoggedOut

	qr, err := a.BeginLogin(context.Background())
	if err != nil || qr == nil {
		t.Fatalf("BeginLogin = (%v, %v)", qr, err)
	}

	state, err := a.ConfirmLogin(context.Background())
	if err != nil || state != LoginLoggedIn {
		t.Fatalf("ConfirmLogin = (%v, %v), want (logged_in, nil)", state, err)
	}

	want := []string{"BeginLogin", "ConfirmLogin"}
	if len(a.Calls) != len(want) {
		t.Fatalf("Calls = %v, want %v", a.Calls, want)
	}
	for i := range want {
		if a.Calls[i] != want[i] {
			t.Fatalf("Calls = %v, want %v", a.Calls, want)
		}
	}
}
