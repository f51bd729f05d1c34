package control

import (
	"context"
	"errors"
	"time"

	"opsched/internal/dispatch"
	"opsched/internal/eventbus"
	"opsched/internal/license"
	"opsched/internal/persistence"
	"opsched/internal/task"
	"opsched/pkg/logx"
)

// Service is the synchronous control plane (C7): it sits in front of the
// Registry, the License Gate, and the Dispatcher, and is the only thing
// a caller outside this module should address. Every operation that
// mutates the registry persists the whole-registry snapshot and wakes
// the dispatcher before returning.
type Service struct {
	reg  *task.Registry
	gate license.Gate
	disp *dispatch.Service
	snap *persistence.SnapshotStore
	log  logx.Logger
	bus  eventbus.Bus
	now  func() time.Time
}

// New wires a control Service. now defaults to time.Now.
func New(reg *task.Registry, gate license.Gate, disp *dispatch.Service, snap *persistence.SnapshotStore, log logx.Logger, bus eventbus.Bus, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{reg: reg, gate: gate, disp: disp, snap: snap, log: log, bus: bus, now: now}
}

func (s *Service) persistAndWake() {
	if s.snap != nil {
		if err := s.snap.Save(s.reg.Snapshot()); err != nil {
			s.log.Error("persist snapshot failed", logx.Err(err))
		}
	}
	if s.disp != nil {
		s.disp.Wake()
	}
}

func (s *Service) publish(typ, taskID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: map[string]any{"task_id": taskID}})
}

// CreateTask validates license limits, coerces the interval while
// not-activated, and creates the task.
func (s *Service) CreateTask(in CreateTaskInput) (task.Snapshot, error) {
	const op = "CreateTask"

	if in.AccountID == "" || in.TaskType == "" || in.SysType == "" {
		return task.Snapshot{}, newErr(op, Invalid, "", errors.New("account_id, task_type and sys_type are required"))
	}
	if in.IntervalSeconds <= 0 {
		return task.Snapshot{}, newErr(op, Invalid, "", errors.New("interval_seconds must be positive"))
	}

	if forced := s.gate.ForcedInterval(); forced > 0 {
		in.IntervalSeconds = forced
	}
	if s.reg.Count() >= s.gate.MaxTasks() {
		return task.Snapshot{}, newErr(op, TaskLimitReached, "", errors.New("task limit reached"))
	}
	if s.gate.IsExpired() {
		return task.Snapshot{}, newErr(op, LicenseExpired, "", errors.New("license expired"))
	}

	snap, err := s.reg.Add(s.now(), task.CreateParams{
		AccountID:       in.AccountID,
		AccountName:     in.AccountName,
		TaskType:        in.TaskType,
		SysType:         in.SysType,
		IntervalSeconds: in.IntervalSeconds,
		ValidHourRange:  in.ValidHourRange,
		EndDate:         in.EndDate,
		Mode:            in.Mode,
		CredentialsDir:  in.CredentialsDir,
		Kwargs:          in.Kwargs,
	})
	if err != nil {
		if errors.Is(err, task.ErrAccountTaken) {
			return task.Snapshot{}, newErr(op, AccountTaken, "", err)
		}
		return task.Snapshot{}, newErr(op, PersistenceError, "", err)
	}

	s.persistAndWake()
	s.publish("control.create_task", snap.TaskID)
	return snap, nil
}

// UpdateTask applies a partial update.
func (s *Service) UpdateTask(taskID string, in UpdateTaskInput) (task.Snapshot, error) {
	const op = "UpdateTask"
	if in.IntervalSeconds != nil && *in.IntervalSeconds <= 0 {
		return task.Snapshot{}, newErr(op, Invalid, taskID, errors.New("interval_seconds must be positive"))
	}
	snap, err := s.reg.Update(s.now(), taskID, task.UpdateParams{
		IntervalSeconds: in.IntervalSeconds,
		ValidHourRange:  in.ValidHourRange,
		EndDate:         in.EndDate,
		Mode:            in.Mode,
		Kwargs:          in.Kwargs,
	})
	if err != nil {
		return task.Snapshot{}, wrapTaskErr(op, taskID, err)
	}
	s.persistAndWake()
	s.publish("control.update_task", taskID)
	return snap, nil
}

// PauseTask pauses a task.
func (s *Service) PauseTask(taskID string) (task.Snapshot, error) {
	snap, err := s.reg.Pause(s.now(), taskID)
	if err != nil {
		return task.Snapshot{}, wrapTaskErr("PauseTask", taskID, err)
	}
	s.persistAndWake()
	s.publish("control.pause_task", taskID)
	return snap, nil
}

// ResumeTask resumes a paused task.
func (s *Service) ResumeTask(taskID string) (task.Snapshot, error) {
	snap, err := s.reg.Resume(s.now(), taskID)
	if err != nil {
		return task.Snapshot{}, wrapTaskErr("ResumeTask", taskID, err)
	}
	s.persistAndWake()
	s.publish("control.resume_task", taskID)
	return snap, nil
}

// ReorderTask shifts a pending task's next_execution_time by offsetSeconds.
func (s *Service) ReorderTask(taskID string, offsetSeconds int) (task.Snapshot, error) {
	snap, err := s.reg.Reorder(s.now(), taskID, offsetSeconds)
	if err != nil {
		return task.Snapshot{}, wrapTaskErr("ReorderTask", taskID, err)
	}
	s.persistAndWake()
	s.publish("control.reorder_task", taskID)
	return snap, nil
}

// DeleteTask removes a task, deferring removal if it is currently running.
func (s *Service) DeleteTask(taskID string) error {
	if err := s.reg.Delete(taskID); err != nil {
		return wrapTaskErr("DeleteTask", taskID, err)
	}
	s.persistAndWake()
	s.publish("control.delete_task", taskID)
	return nil
}

// ExecuteNow runs one RunOnce synchronously, subject to the license gate
// and the Global Lock.
func (s *Service) ExecuteNow(ctx context.Context, taskID string) (RunOutcome, error) {
	const op = "ExecuteNow"
	if !s.gate.CanExecuteNow() {
		return RunOutcome{}, newErr(op, LicenseForbidden, taskID, errors.New("execute-now forbidden under current license"))
	}
	if _, ok := s.reg.Get(taskID); !ok {
		return RunOutcome{}, newErr(op, NotFound, taskID, task.ErrNotFound)
	}

	out, err := s.disp.ExecuteNow(ctx, taskID)
	if err != nil {
		if errors.Is(err, dispatch.ErrBusy) {
			return RunOutcome{}, newErr(op, Busy, taskID, err)
		}
		return RunOutcome{}, newErr(op, AgentErrorReason, taskID, err)
	}
	s.disp.Wake()
	s.publish("control.execute_now", taskID)
	return RunOutcome{
		TaskID:   out.TaskID,
		Started:  out.Started,
		Ended:    out.Ended,
		Duration: out.Duration,
		Success:  out.Success,
	}, nil
}

// ListTasks returns every task matching filter, read-only.
func (s *Service) ListTasks(filter ListFilter) []task.Snapshot {
	return s.reg.List(task.Filter{AccountID: filter.AccountID, Status: filter.Status})
}

// GetTask returns one task by id.
func (s *Service) GetTask(taskID string) (task.Snapshot, error) {
	snap, ok := s.reg.Get(taskID)
	if !ok {
		return task.Snapshot{}, newErr("GetTask", NotFound, taskID, task.ErrNotFound)
	}
	return snap, nil
}

// ByAccount returns every task for accountID across task types.
func (s *Service) ByAccount(accountID string) []task.Snapshot {
	return s.reg.GetByAccount(accountID)
}

// StartDispatcher starts the dispatch loop.
func (s *Service) StartDispatcher(ctx context.Context) DispatcherStatus {
	s.disp.Start(ctx)
	return s.DispatcherStatus()
}

// StopDispatcher stops the dispatch loop; an in-flight run completes
// within its configured grace window first.
func (s *Service) StopDispatcher(ctx context.Context) DispatcherStatus {
	s.disp.Stop(ctx)
	return s.DispatcherStatus()
}

// DispatcherStatus reports per-status counts and the running task, if any.
func (s *Service) DispatcherStatus() DispatcherStatus {
	st := s.disp.Status()
	return DispatcherStatus{Running: st.Running, RunningTaskID: st.RunningTaskID, Counts: st.Counts}
}

// LoginQRCode asks the task's Agent to begin a credential exchange.
func (s *Service) LoginQRCode(ctx context.Context, taskID string) (LoginResult, error) {
	ag, ok := s.reg.Agent(taskID)
	if !ok {
		return LoginResult{}, newErr("LoginQRCode", NotFound, taskID, task.ErrNotFound)
	}
	qr, err := ag.BeginLogin(ctx)
	if err != nil {
		return LoginResult{}, newErr("LoginQRCode", AgentErrorReason, taskID, err)
	}
	return LoginResult{TaskID: taskID, QRCode: qr}, nil
}

// LoginStatus probes the task's Agent login state.
func (s *Service) LoginStatus(ctx context.Context, taskID string) (LoginResult, error) {
	ag, ok := s.reg.Agent(taskID)
	if !ok {
		return LoginResult{}, newErr("LoginStatus", NotFound, taskID, task.ErrNotFound)
	}
	state, err := ag.LoginStatus(ctx)
	if err != nil {
		return LoginResult{}, newErr("LoginStatus", AgentErrorReason, taskID, err)
	}
	return LoginResult{TaskID: taskID, State: string(state)}, nil
}

// LoginConfirm finalizes a credential exchange.
func (s *Service) LoginConfirm(ctx context.Context, taskID string) (LoginResult, error) {
	ag, ok := s.reg.Agent(taskID)
	if !ok {
		return LoginResult{}, newErr("LoginConfirm", NotFound, taskID, task.ErrNotFound)
	}
	state, err := ag.ConfirmLogin(ctx)
	if err != nil {
		return LoginResult{}, newErr("LoginConfirm", AgentErrorReason, taskID, err)
	}
	return LoginResult{TaskID: taskID, State: string(state)}, nil
}

func wrapTaskErr(op, taskID string, err error) error {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return newErr(op, NotFound, taskID, err)
	case errors.Is(err, task.ErrAccountTaken):
		return newErr(op, AccountTaken, taskID, err)
	case errors.Is(err, task.ErrIllegalState), errors.Is(err, task.ErrRunningConflict):
		return newErr(op, IllegalState, taskID, err)
	default:
		return newErr(op, PersistenceError, taskID, err)
	}
}
