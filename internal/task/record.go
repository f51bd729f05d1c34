package task

import (
	"encoding/json"
	"time"

	"opsched/internal/agent"
	"opsched/internal/clock"
)

// Record is the in-memory task state. All mutation goes through the
// Registry so invariants (account uniqueness, at-most-one-running,
// next_execution_time nullability) stay enforced; Record itself only
// exposes read access.
type Record struct {
	TaskID      string
	AccountID   string
	AccountName string
	TaskType    string
	SysType     string

	IntervalSeconds int
	ValidHourRange  *clock.Window
	EndDate         time.Time

	Mode   Mode
	Status Status

	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastExecutionTime time.Time
	NextExecutionTime time.Time

	RoundNum int

	CredentialsDir string
	Kwargs         json.RawMessage

	// Agent is this task's collaborator handle. Reconstructed from Kwargs
	// and SysType on registry load; never nil for a live Record.
	Agent agent.Agent
}

// Snapshot is an immutable copy of a Record's public fields, safe to
// hand to callers outside the Registry lock.
type Snapshot struct {
	TaskID            string          `json:"task_id"`
	AccountID         string          `json:"account_id"`
	AccountName       string          `json:"account_name"`
	TaskType          string          `json:"task_type"`
	SysType           string          `json:"sys_type"`
	Status            Status          `json:"status"`
	IntervalSeconds   int             `json:"interval_seconds"`
	ValidHourRange    *[2]int         `json:"valid_hour_range,omitempty"`
	EndDate           time.Time       `json:"end_date,omitempty"`
	LastExecutionTime time.Time       `json:"last_execution_time,omitempty"`
	NextExecutionTime time.Time       `json:"next_execution_time,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	RoundNum          int             `json:"round_num"`
	Mode              Mode            `json:"mode"`
	Kwargs            json.RawMessage `json:"kwargs,omitempty"`
}

func (r *Record) snapshot() Snapshot {
	var rng *[2]int
	if r.ValidHourRange != nil {
		v := [2]int{r.ValidHourRange.StartHour, r.ValidHourRange.EndHour}
		rng = &v
	}
	return Snapshot{
		TaskID:            r.TaskID,
		AccountID:         r.AccountID,
		AccountName:       r.AccountName,
		TaskType:          r.TaskType,
		SysType:           r.SysType,
		Status:            r.Status,
		IntervalSeconds:   r.IntervalSeconds,
		ValidHourRange:    rng,
		EndDate:           r.EndDate,
		LastExecutionTime: r.LastExecutionTime,
		NextExecutionTime: r.NextExecutionTime,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		RoundNum:          r.RoundNum,
		Mode:              r.Mode,
		Kwargs:            r.Kwargs,
	}
}
