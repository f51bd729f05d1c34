package dispatch

import (
	"context"
	"testing"
	"time"

	"opsched/internal/agent"
	"opsched/internal/eventbus"
	"opsched/internal/persistence"
	"opsched/internal/task"
	"opsched/pkg/logx"
)

func noopFactory(sysType, credentialsDir string, kwargs []byte) (agent.Agent, error) {
	return agent.NewNoopAgent(credentialsDir), nil
}

func newTestHarness(t *testing.T) (*task.Registry, *persistence.SnapshotStore, *Service) {
	t.Helper()
	meta := persistence.NewTaskMetaStore(t.TempDir())
	reg := task.NewRegistry(meta, noopFactory)
	snap := persistence.NewSnapshotStore(t.TempDir())
	svc := New(Config{ExecuteNowWait: 100 * time.Millisecond, MaxPoll: 200 * time.Millisecond}, reg, snap, logx.Nop(), eventbus.New())
	return reg, snap, svc
}

func addTask(t *testing.T, reg *task.Registry, now time.Time, accountID string) string {
	t.Helper()
	s, err := reg.Add(now, task.CreateParams{
		AccountID:       accountID,
		AccountName:     accountID,
		TaskType:        "post",
		SysType:         "douyin",
		IntervalSeconds: 3600,
		Mode:            task.ModeStandard,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return s.TaskID
}

func TestService_ExecuteNow_RunsTask(t *testing.T) {
	reg, _, svc := newTestHarness(t)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	taskID := addTask(t, reg, now, "acct-1")

	out, err := svc.ExecuteNow(context.Background(), taskID)
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	snap, ok := reg.Get(taskID)
	if !ok {
		t.Fatal("task disappeared after run")
	}
	if snap.Status != task.StatusPending {
		t.Fatalf("status = %s, want pending", snap.Status)
	}
	if snap.RoundNum != 1 {
		t.Fatalf("round_num = %d, want 1", snap.RoundNum)
	}

	ag, ok := reg.Agent(taskID)
	if !ok {
		t.Fatal("agent missing")
	}
	noop := ag.(*agent.NoopAgent)
	if len(noop.Calls) != 1 || noop.Calls[0] != "RunOnce" {
		t.Fatalf("calls = %v, want [RunOnce]", noop.Calls)
	}
}

func TestService_ExecuteNow_Busy(t *testing.T) {
	reg, _, svc := newTestHarness(t)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	taskID := addTask(t, reg, now, "acct-1")

	if err := svc.lock.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer svc.lock.Release()

	_, err := svc.ExecuteNow(context.Background(), taskID)
	if err != ErrBusy {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestService_ExecuteNow_NotFound(t *testing.T) {
	_, _, svc := newTestHarness(t)
	if _, err := svc.ExecuteNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing task")
	}
}

func TestService_StartStop_DispatchesDueTask(t *testing.T) {
	reg, snap, svc := newTestHarness(t)
	now := time.Now()
	taskID := addTask(t, reg, now.Add(-time.Hour), "acct-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := reg.Get(taskID); ok && s.RoundNum >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	s, ok := reg.Get(taskID)
	if !ok {
		t.Fatal("task disappeared")
	}
	if s.RoundNum < 1 {
		t.Fatalf("task was never dispatched: %+v", s)
	}

	svc.Stop(context.Background())

	persisted, err := snap.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted == nil || len(persisted.Tasks) != 1 {
		t.Fatalf("expected a persisted snapshot with one task, got %+v", persisted)
	}
}

func TestService_OnlyOneTaskRunsAtATime(t *testing.T) {
	reg, _, svc := newTestHarness(t)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	a := addTask(t, reg, now, "acct-a")
	b := addTask(t, reg, now, "acct-b")

	agA, _ := reg.Agent(a)
	agB, _ := reg.Agent(b)
	agA.(*agent.NoopAgent).RunDelay = 80 * time.Millisecond
	agB.(*agent.NoopAgent).RunDelay = 80 * time.Millisecond

	type result struct {
		out RunOutcome
		err error
	}
	done := make(chan result, 2)
	go func() {
		out, err := svc.ExecuteNow(context.Background(), a)
		done <- result{out, err}
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		out, err := svc.ExecuteNow(context.Background(), b)
		done <- result{out, err}
	}()

	var outs []RunOutcome
	for i := 0; i < 2; i++ {
		r := <-done
		if r.err != nil {
			t.Fatalf("ExecuteNow: %v", r.err)
		}
		outs = append(outs, r.out)
	}
	first, second := outs[0], outs[1]
	if second.Started.Before(first.Started) {
		first, second = second, first
	}
	if second.Started.Before(first.Ended) {
		t.Fatalf("runs overlapped: first %v-%v, second started %v", first.Started, first.Ended, second.Started)
	}
}

func TestService_Status(t *testing.T) {
	reg, _, svc := newTestHarness(t)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	addTask(t, reg, now, "acct-1")

	st := svc.Status()
	if st.Running {
		t.Fatal("Running should be false before Start")
	}
	if st.Counts[string(task.StatusPending)] != 1 {
		t.Fatalf("counts = %+v, want one pending", st.Counts)
	}
}
