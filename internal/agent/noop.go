package agent

import (
	"context"
	"sync"
	"time"
)

// NoopAgent is a deterministic test double. It records the order of calls
// (by method name) so dispatch/control tests can assert on them without a
// real browser-automation backend.
type NoopAgent struct {
	mu sync.Mutex

	RunResult bool
	RunErr    error
	RunDelay  time.Duration

	Login LoginState

	credentialsPath string

	Calls []string
}

func NewNoopAgent(credentialsPath string) *NoopAgent {
	return &NoopAgent{RunResult: true, Login: LoginLoggedIn, credentialsPath: credentialsPath}
}

func (a *NoopAgent) record(name string) {
	a.mu.Lock()
	a.Calls = append(a.Calls, name)
	a.mu.Unlock()
}

func (a *NoopAgent) RunOnce(ctx context.Context) (bool, error) {
	a.record("RunOnce")
	if a.RunDelay > 0 {
		select {
		case <-time.After(a.RunDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return a.RunResult, a.RunErr
}

func (a *NoopAgent) LoginStatus(ctx context.Context) (LoginState, error) {
	a.record("LoginStatus")
	return a.Login, nil
}

func (a *NoopAgent) BeginLogin(ctx context.Context) ([]byte, error) {
	a.record("BeginLogin")
	if a.Login == LoginLoggedIn {
		return nil, nil
	}
	return []byte("fake-qrcode"), nil
}

func (a *NoopAgent) ConfirmLogin(ctx context.Context) (LoginState, error) {
	a.record("ConfirmLogin")
	a.mu.Lock()
	a.Login = LoginLoggedIn
	a.mu.Unlock()
	return LoginLoggedIn, nil
}

func (a *NoopAgent) CredentialsPath() string {
	return a.credentialsPath
}
