package license

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStaticGate_NotActivated_FreeTrial(t *testing.T) {
	g := NewStaticGate(Config{Activated: false}, fixedNow(time.Now()))
	if g.MaxTasks() != FreeTrialMaxTasks {
		t.Fatalf("MaxTasks = %d, want %d", g.MaxTasks(), FreeTrialMaxTasks)
	}
	if g.ForcedInterval() != FreeTrialIntervalSeconds {
		t.Fatalf("ForcedInterval = %d, want %d", g.ForcedInterval(), FreeTrialIntervalSeconds)
	}
	if g.CanExecuteNow() {
		t.Fatal("CanExecuteNow should be false while not activated")
	}
	if g.IsExpired() {
		t.Fatal("not-activated is never 'expired'")
	}
}

func TestStaticGate_ActivatedNotExpired(t *testing.T) {
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	g := NewStaticGate(Config{Activated: true, TaskNum: 10, EndTime: now.Add(30 * 24 * time.Hour)}, fixedNow(now))
	if g.MaxTasks() != 10 {
		t.Fatalf("MaxTasks = %d, want 10", g.MaxTasks())
	}
	if g.ForcedInterval() != 0 {
		t.Fatalf("ForcedInterval = %d, want 0", g.ForcedInterval())
	}
	if !g.CanExecuteNow() {
		t.Fatal("CanExecuteNow should be true")
	}
}

func TestStaticGate_ActivatedExpired(t *testing.T) {
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	g := NewStaticGate(Config{Activated: true, TaskNum: 10, EndTime: now.Add(-time.Hour)}, fixedNow(now))
	if !g.IsExpired() {
		t.Fatal("expected expired")
	}
	if g.MaxTasks() != FreeTrialMaxTasks {
		t.Fatalf("MaxTasks = %d, want free-trial fallback %d", g.MaxTasks(), FreeTrialMaxTasks)
	}
	if g.CanExecuteNow() {
		t.Fatal("expired license must not allow execute-now")
	}
}

func TestFileGate_MissingFileIsNotActivated(t *testing.T) {
	g := NewFileGate(filepath.Join(t.TempDir(), "missing.json"), nil)
	if g.MaxTasks() != FreeTrialMaxTasks {
		t.Fatalf("MaxTasks = %d, want %d", g.MaxTasks(), FreeTrialMaxTasks)
	}
}

func TestFileGate_ReadsDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.json")
	doc := map[string]any{
		"task_num":     5,
		"end_time":     time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"activated_at": time.Now().Format(time.RFC3339),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	g := NewFileGate(path, nil)
	if g.MaxTasks() != 5 {
		t.Fatalf("MaxTasks = %d, want 5", g.MaxTasks())
	}
	if !g.CanExecuteNow() {
		t.Fatal("expected CanExecuteNow true")
	}
}
