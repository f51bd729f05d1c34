package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// StepRecord archives one completed step of a task's step log, once the
// in-memory/embedded step log for a round has been superseded. Keep it
// compact and schema-stable.
type StepRecord struct {
	At        time.Time
	TaskID    string
	AccountID string
	RoundNum  int
	Step      string
	Success   bool
	Error     string
	TookMS    int64
	MetaJSON  string
}
