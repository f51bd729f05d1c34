package control

import (
	"encoding/json"
	"time"

	"opsched/internal/clock"
	"opsched/internal/task"
)

// CreateTaskInput is the input to CreateTask: identity, cadence, mode,
// and opaque agent params.
type CreateTaskInput struct {
	AccountID       string
	AccountName     string
	TaskType        string
	SysType         string
	IntervalSeconds int
	ValidHourRange  *clock.Window
	EndDate         time.Time
	Mode            task.Mode
	CredentialsDir  string
	Kwargs          json.RawMessage
}

// UpdateTaskInput is the input to UpdateTask. Nil fields are left
// unchanged; identity fields are never part of this struct.
type UpdateTaskInput struct {
	IntervalSeconds *int
	ValidHourRange  **clock.Window
	EndDate         *time.Time
	Mode            *task.Mode
	Kwargs          json.RawMessage
}

// ListFilter narrows ListTasks.
type ListFilter struct {
	AccountID *string
	Status    *task.Status
}

// RunOutcome is the result of ExecuteNow.
type RunOutcome struct {
	TaskID   string
	Started  time.Time
	Ended    time.Time
	Duration time.Duration
	Success  bool
}

// DispatcherStatus is the result of StartDispatcher/StopDispatcher/DispatcherStatus.
type DispatcherStatus struct {
	Running       bool
	RunningTaskID string
	Counts        map[string]int
}

// LoginResult carries an Agent login probe/exchange result back to the
// control plane.
type LoginResult struct {
	TaskID string
	State  string
	QRCode []byte
}
