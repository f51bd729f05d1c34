package control

import "fmt"

// Reason is the closed set of failure codes every Control API operation
// can return. Callers switch on Reason, never on error string contents.
type Reason string

const (
	NotFound         Reason = "not_found"
	AccountTaken     Reason = "account_taken"
	Invalid          Reason = "invalid"
	IllegalState     Reason = "illegal_state"
	TaskLimitReached Reason = "task_limit_reached"
	LicenseExpired   Reason = "license_expired"
	LicenseForbidden Reason = "license_forbidden"
	Busy             Reason = "busy"
	AgentErrorReason Reason = "agent_error"
	PersistenceError Reason = "persistence_error"
	CorruptSnapshot  Reason = "corrupt_snapshot"
)

// SchedulerError wraps every error a Control API operation returns with
// the reason code, the operation name, and (when applicable) the task_id
// that failed, so callers can branch on Reason without string matching.
type SchedulerError struct {
	Reason Reason
	Op     string
	TaskID string
	Err    error
}

func (e *SchedulerError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s(%s): %s: %v", e.Op, e.TaskID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

func newErr(op string, reason Reason, taskID string, err error) *SchedulerError {
	return &SchedulerError{Reason: reason, Op: op, TaskID: taskID, Err: err}
}
