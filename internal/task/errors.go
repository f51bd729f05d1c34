package task

import "errors"

var (
	// ErrAccountTaken is returned by Add when a non-deleted task already
	// exists for the same (task_type, account_id) pair.
	ErrAccountTaken = errors.New("account already has a task of this type")

	// ErrNotFound is returned by any operation addressing a task_id that
	// does not exist in the registry.
	ErrNotFound = errors.New("task not found")

	// ErrRunningConflict reports a task that is currently running. No
	// Registry operation returns it: Delete on a running task marks it
	// for deferred deletion instead of failing.
	ErrRunningConflict = errors.New("task is running")

	// ErrIllegalState is returned by Reorder and Resume when the current
	// status makes the operation meaningless (reorder on a running or
	// paused task, or one with no next_execution_time; resume on a
	// running task). Pause on a paused or completed task is a no-op.
	ErrIllegalState = errors.New("illegal task state for this operation")
)
