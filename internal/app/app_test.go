package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"opsched/internal/control"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.json")
	body := `{
		"logging": {"level": "error", "console": false},
		"dispatcher": {"poll_interval": "200ms", "execute_now_wait": "200ms"},
		"persistence": {
			"task_meta_dir": "` + filepath.Join(dir, "tasks") + `",
			"snapshot_dir": "` + filepath.Join(dir, "snap") + `"
		},
		"license": {"driver": "static", "max_tasks": 10},
		"agents": {}
	}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestNewApp_WiresAndCreatesTask(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	snap, err := a.Control().CreateTask(control.CreateTaskInput{
		AccountID:       "op1",
		AccountName:     "op1",
		TaskType:        "post",
		SysType:         "douyin",
		IntervalSeconds: 3600,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if snap.TaskID == "" {
		t.Fatal("expected a task_id")
	}

	if _, err := os.Stat(filepath.Join(dir, "snap", "dispatcher_snapshot.json")); err != nil {
		t.Fatalf("expected a persisted snapshot: %v", err)
	}
}

func TestApp_StartStopExecutesDueTask(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	snap, err := a.Control().CreateTask(control.CreateTaskInput{
		AccountID:       "op1",
		AccountName:     "op1",
		TaskType:        "post",
		SysType:         "douyin",
		IntervalSeconds: 3600,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := a.Control().ReorderTask(snap.TaskID, -7200); err != nil {
		t.Fatalf("ReorderTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, err := a.Control().GetTask(snap.TaskID); err == nil && s.RoundNum >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	s, err := a.Control().GetTask(snap.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if s.RoundNum < 1 {
		t.Fatalf("task never dispatched: %+v", s)
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
