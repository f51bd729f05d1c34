package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsched/internal/agent"
	"opsched/internal/dispatch"
	"opsched/internal/eventbus"
	"opsched/internal/license"
	"opsched/internal/persistence"
	"opsched/internal/task"
	"opsched/pkg/logx"
)

func noopFactory(sysType, credentialsDir string, kwargs []byte) (agent.Agent, error) {
	return agent.NewNoopAgent(credentialsDir), nil
}

func newTestService(t *testing.T, gate license.Gate, fixedNow time.Time) *Service {
	t.Helper()
	meta := persistence.NewTaskMetaStore(t.TempDir())
	reg := task.NewRegistry(meta, noopFactory)
	snap := persistence.NewSnapshotStore(t.TempDir())
	disp := dispatch.New(dispatch.Config{ExecuteNowWait: 50 * time.Millisecond}, reg, snap, logx.Nop(), eventbus.New())
	return New(reg, gate, disp, snap, logx.Nop(), eventbus.New(), func() time.Time { return fixedNow })
}

func mustDate(y int, m time.Month, d, h, min, sec int) time.Time {
	return time.Date(y, m, d, h, min, sec, 0, time.Local)
}

func TestCreateTask_FreeTrialCoercesInterval(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	svc := newTestService(t, license.NewStaticGate(license.Config{}, func() time.Time { return now }), now)

	snap, err := svc.CreateTask(CreateTaskInput{
		AccountID:       "op1",
		TaskType:        "post",
		SysType:         "douyin",
		IntervalSeconds: 900,
		Mode:            task.ModeStandard,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if snap.IntervalSeconds != license.FreeTrialIntervalSeconds {
		t.Fatalf("interval_seconds = %d, want %d", snap.IntervalSeconds, license.FreeTrialIntervalSeconds)
	}

	_, err = svc.ExecuteNow(context.Background(), snap.TaskID)
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Reason != LicenseForbidden {
		t.Fatalf("ExecuteNow err = %v, want LicenseForbidden", err)
	}
}

func TestCreateTask_TaskLimitReached(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	svc := newTestService(t, license.NewStaticGate(license.Config{}, func() time.Time { return now }), now)

	if _, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600}); err != nil {
		t.Fatalf("first CreateTask: %v", err)
	}

	_, err := svc.CreateTask(CreateTaskInput{AccountID: "op2", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600})
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Reason != TaskLimitReached {
		t.Fatalf("err = %v, want TaskLimitReached", err)
	}
}

func TestCreateTask_AccountTaken(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	if _, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600}); err != nil {
		t.Fatalf("first CreateTask: %v", err)
	}
	_, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600})
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Reason != AccountTaken {
		t.Fatalf("err = %v, want AccountTaken", err)
	}
}

func TestCreateTask_Invalid(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	_, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: -5})
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Reason != Invalid {
		t.Fatalf("err = %v, want Invalid", err)
	}
}

func TestReorderTask_IllegalStateWhenRunning(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	snap, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, ok := svc.reg.BeginRun(snap.TaskID); !ok {
		t.Fatal("BeginRun failed")
	}

	_, err = svc.ReorderTask(snap.TaskID, 3600)
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Reason != IllegalState {
		t.Fatalf("err = %v, want IllegalState", err)
	}
}

func TestPauseResumeDeleteTask(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	snap, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	paused, err := svc.PauseTask(snap.TaskID)
	if err != nil || paused.Status != task.StatusPaused {
		t.Fatalf("PauseTask: %v, %+v", err, paused)
	}
	resumed, err := svc.ResumeTask(snap.TaskID)
	if err != nil || resumed.Status != task.StatusPending {
		t.Fatalf("ResumeTask: %v, %+v", err, resumed)
	}
	if err := svc.DeleteTask(snap.TaskID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := svc.GetTask(snap.TaskID); err == nil {
		t.Fatal("expected NotFound after delete")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	svc := newTestService(t, license.NewStaticGate(license.Config{}, func() time.Time { return now }), now)

	_, err := svc.GetTask("missing")
	var serr *SchedulerError
	if !errors.As(err, &serr) || serr.Reason != NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestExecuteNow_Success(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	snap, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	out, err := svc.ExecuteNow(context.Background(), snap.TaskID)
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if !out.Success {
		t.Fatalf("outcome not successful: %+v", out)
	}
}

func TestDispatcherStatus_ReflectsCounts(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	if _, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	st := svc.DispatcherStatus()
	if st.Running {
		t.Fatal("dispatcher should not be running before StartDispatcher")
	}
	if st.Counts[string(task.StatusPending)] != 1 {
		t.Fatalf("counts = %+v, want one pending", st.Counts)
	}
}

func TestLoginFlow(t *testing.T) {
	now := mustDate(2026, 1, 1, 7, 30, 0)
	gate := license.NewStaticGate(license.Config{Activated: true, TaskNum: 10}, func() time.Time { return now })
	svc := newTestService(t, gate, now)

	snap, err := svc.CreateTask(CreateTaskInput{AccountID: "op1", TaskType: "post", SysType: "douyin", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	status, err := svc.LoginStatus(context.Background(), snap.TaskID)
	if err != nil || status.State != string(agent.LoginLoggedIn) {
		t.Fatalf("LoginStatus: %v, %+v", err, status)
	}

	if _, err := svc.LoginQRCode(context.Background(), "missing"); err == nil {
		t.Fatal("expected NotFound for missing task")
	}
}
