package config

import (
	"bytes"
	"encoding/json"
)

// Config is the top-level hot-reloadable configuration document for the
// scheduler process.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Dispatcher controls the single dispatch coordinator.
	Dispatcher DispatcherConfig `json:"dispatcher"`

	// Persistence controls where task metadata and the registry snapshot
	// are written on disk.
	Persistence PersistenceConfig `json:"persistence"`

	License LicenseConfig `json:"license"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	Agents map[string]AgentConfigRaw `json:"agents"`
}

// DispatcherConfig controls the dispatch coordinator loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - poll_interval: "60s" (upper bound on how stale the due-set check can be)
//
// MinInterval, HistorySize and Timezone are accepted and reported in the
// config change summary, but the scheduler does not read them.
type DispatcherConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// PollInterval bounds how long the loop will sleep even with nothing due,
	// so that control-API mutations (pause/resume/reorder) are never stale
	// for longer than this.
	PollInterval string `json:"poll_interval,omitempty"`

	// MinInterval is not read; the only interval floor applied is the
	// license gate's forced interval.
	MinInterval string `json:"min_interval,omitempty"`

	// HistorySize is not read.
	HistorySize int `json:"history_size,omitempty"`

	// Timezone is not read: validity windows are whole-hour ranges
	// evaluated in the process's local timezone (time.Local).
	Timezone string `json:"timezone,omitempty"`

	// SharedCookiePath is the single shared credentials file staged from
	// a task's own credentials directory before RunOnce and removed
	// after, inside the Global Lock.
	SharedCookiePath string `json:"shared_cookie_path,omitempty"`

	// ExecuteNowWait bounds how long an Execute-Now call waits to
	// acquire the Global Lock before returning Busy.
	ExecuteNowWait string `json:"execute_now_wait,omitempty"`

	// ShutdownGrace bounds how long Stop waits for an in-flight run to
	// finish before the process exits regardless.
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// PersistenceConfig controls on-disk storage of task metadata (one file per
// task, containing identity/state plus its embedded step log) and of the
// registry snapshot used to recover running/pending tasks across restarts.
type PersistenceConfig struct {
	// TaskMetaDir is the root under which each task's meta document is
	// kept, at tasks/<task_id>/meta.json.
	TaskMetaDir string `json:"task_meta_dir"`

	// SnapshotDir holds dispatcher_snapshot.json, the whole-registry
	// snapshot file.
	SnapshotDir string `json:"snapshot_dir"`

	// SaveDebounce is not read: the snapshot is written synchronously
	// after every mutation.
	SaveDebounce string `json:"save_debounce,omitempty"`
}

// LicenseConfig controls the local license gate. The gate's own
// activation/remote-verification flow is out of scope; only the resulting
// contract (max tasks, expiry) is configured here.
type LicenseConfig struct {
	// Driver selects the gate implementation: "static" (fixed values from
	// this config) or "file" (re-reads a license file on each check).
	Driver string `json:"driver"`

	MaxTasks int `json:"max_tasks"`
	// ForcedInterval is not read: the gate applies its own fixed
	// free-trial interval.
	ForcedInterval string `json:"forced_interval,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"` // RFC3339, empty = never

	// FilePath is used only when Driver == "file".
	FilePath string `json:"file_path,omitempty"`
}

// NotifierConfig controls the async ops-alert pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, no notifier is built.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`

	// Telegram delivers alerts via a bot token, purely as a send-side sink
	// (no command surface, no inbound updates).
	Telegram NotifierTelegramConfig `json:"telegram"`
}

type NotifierTelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StorageConfig controls the optional storage backend. The notifier uses
// it to persist dedup entries when persist_dedup is set; nothing in this
// module writes step records to it.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./opsched_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert controls fanning warn/error log lines out through the
// notifier service (see pkg/logx.AlertSink).
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// AgentConfigRaw is the per-account-kind agent backend configuration
// (e.g. which MCP server URL to dial, credentials directory layout).
// Kept as raw JSON so each agent implementation can define its own shape
// without widening this package's surface for every backend.
type AgentConfigRaw struct {
	Driver         string          `json:"driver"`
	CredentialsDir string          `json:"credentials_dir,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields to catch typos early during
// config reload.
func (a *AgentConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Driver         string          `json:"driver"`
		CredentialsDir string          `json:"credentials_dir,omitempty"`
		Config         json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*a = AgentConfigRaw{Driver: t.Driver, CredentialsDir: t.CredentialsDir, Config: t.Config}
	return nil
}
