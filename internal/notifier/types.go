package notifier

import "time"

// Config controls the async ops-alert pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Alert is a small, high-signal message for operators: a task entered
// error status, the license expired, a control-API call was rejected as
// Busy, and so on.
type Alert struct {
	// Channel identifies the alert source (e.g. "task", "license", "control").
	Channel string
	// Priority selects the message prefix: 9+ "[URGENT]", 7-8 "[ALERT]",
	// 5-6 "[INFO]", below 5 none.
	Priority int
	Text     string
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// AlertEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type AlertEvent struct {
	Channel string    `json:"channel"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
