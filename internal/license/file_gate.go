package license

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// fileDoc mirrors LicenseConfig.config's shape: task_num, end_time,
// activated_at. A missing or unreadable file is treated as not-activated.
type fileDoc struct {
	TaskNum     int    `json:"task_num"`
	EndTime     string `json:"end_time"`
	ActivatedAt string `json:"activated_at"`
}

// FileGate reads a local JSON license document on every predicate call.
// No network client, no encryption — those remain out of scope.
type FileGate struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	lastErr error
}

// NewFileGate returns a Gate backed by the JSON file at path.
func NewFileGate(path string, now func() time.Time) *FileGate {
	if now == nil {
		now = time.Now
	}
	return &FileGate{path: path, now: now}
}

func (g *FileGate) read() Config {
	b, err := os.ReadFile(g.path)
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
	if err != nil {
		return Config{}
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		g.mu.Lock()
		g.lastErr = err
		g.mu.Unlock()
		return Config{}
	}
	cfg := Config{Activated: doc.ActivatedAt != "", TaskNum: doc.TaskNum}
	if doc.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, doc.EndTime); err == nil {
			cfg.EndTime = t
		}
	}
	return cfg
}

// LastError returns the most recent file read/parse error, if any. A
// missing file is not surfaced as an application error elsewhere — it
// simply yields an unactivated Config — but operators can still inspect
// why via this accessor.
func (g *FileGate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

func (g *FileGate) MaxTasks() int {
	cfg := g.read()
	if !cfg.Activated || cfg.isExpired(g.now()) {
		return FreeTrialMaxTasks
	}
	return cfg.TaskNum
}

func (g *FileGate) ForcedInterval() int {
	cfg := g.read()
	if !cfg.Activated || cfg.isExpired(g.now()) {
		return FreeTrialIntervalSeconds
	}
	return 0
}

func (g *FileGate) CanExecuteNow() bool {
	cfg := g.read()
	if !cfg.Activated {
		return false
	}
	return !cfg.isExpired(g.now())
}

func (g *FileGate) IsExpired() bool {
	cfg := g.read()
	return cfg.isExpired(g.now())
}
