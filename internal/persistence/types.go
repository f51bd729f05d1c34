package persistence

import (
	"encoding/json"
	"time"
)

// SchemaVersion is stamped into every snapshot file this package writes.
// Bump it when the on-disk shape changes incompatibly.
const SchemaVersion = 1

// StepEntry is one append-only record in a task's meta step log, written
// once per RunOnce invocation.
type StepEntry struct {
	At      time.Time       `json:"at"`
	Round   int             `json:"round"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TaskMeta is the durable per-task document: identity, cadence, mode, and
// the step history. Startup recovery does not read it: tasks and their
// Agent handles are rebuilt from the registry snapshot alone.
type TaskMeta struct {
	TaskID          string          `json:"task_id"`
	AccountID       string          `json:"account_id"`
	AccountName     string          `json:"account_name"`
	TaskType        string          `json:"task_type"`
	SysType         string          `json:"sys_type"`
	IntervalSeconds int             `json:"interval_seconds"`
	ValidHourRange  *[2]int         `json:"valid_hour_range,omitempty"`
	EndDate         time.Time       `json:"end_date,omitempty"`
	Mode            string          `json:"mode"`
	CredentialsDir  string          `json:"credentials_dir"`
	Kwargs          json.RawMessage `json:"kwargs,omitempty"`
	RoundNum        int             `json:"round_num"`
	Steps           []StepEntry     `json:"step"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TaskSnapshot is one task's entry inside a registry Snapshot. It carries
// everything needed to rebuild a Task Record and its Agent handle without
// re-reading the per-task meta file.
type TaskSnapshot struct {
	TaskID             string          `json:"task_id"`
	AccountID          string          `json:"account_id"`
	AccountName        string          `json:"account_name"`
	TaskType           string          `json:"task_type"`
	SysType            string          `json:"sys_type"`
	Status             string          `json:"status"`
	IntervalSeconds    int             `json:"interval_seconds"`
	ValidHourRange     *[2]int         `json:"valid_hour_range,omitempty"`
	EndDate            time.Time       `json:"end_date,omitempty"`
	Mode               string          `json:"mode"`
	CredentialsDir     string          `json:"credentials_dir"`
	Kwargs             json.RawMessage `json:"kwargs,omitempty"`
	RoundNum           int             `json:"round_num"`
	LastExecutionTime  time.Time       `json:"last_execution_time,omitempty"`
	NextExecutionTime  time.Time       `json:"next_execution_time,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Snapshot is the whole-registry persistence document (C8).
type Snapshot struct {
	SchemaVersion int            `json:"schema_version"`
	SavedAt       time.Time      `json:"saved_at"`
	Tasks         []TaskSnapshot `json:"tasks"`
	// AccountTasks mirrors the in-memory task_type -> account_id -> task_id index.
	AccountTasks map[string]map[string]string `json:"account_tasks"`
}
