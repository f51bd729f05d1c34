package persistence

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestTaskMetaStore_LoadOrInit(t *testing.T) {
	dir := t.TempDir()
	s := NewTaskMetaStore(dir)

	defaults := TaskMeta{TaskID: "t1", AccountID: "a1", IntervalSeconds: 3600, CreatedAt: time.Now()}
	got, err := s.LoadOrInit("t1", defaults)
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if got.AccountID != "a1" {
		t.Fatalf("got account %q", got.AccountID)
	}

	// Second call returns the persisted doc, not fresh defaults.
	again, err := s.LoadOrInit("t1", TaskMeta{TaskID: "t1", AccountID: "different"})
	if err != nil {
		t.Fatalf("LoadOrInit (2nd): %v", err)
	}
	if again.AccountID != "a1" {
		t.Fatalf("expected persisted doc to win, got account %q", again.AccountID)
	}
}

func TestTaskMetaStore_AppendStep(t *testing.T) {
	dir := t.TempDir()
	s := NewTaskMetaStore(dir)

	if _, err := s.LoadOrInit("t1", TaskMeta{TaskID: "t1"}); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}

	meta, err := s.AppendStep("t1", StepEntry{At: time.Now(), Round: 1, Success: true})
	if err != nil {
		t.Fatalf("AppendStep: %v", err)
	}
	if len(meta.Steps) != 1 || meta.RoundNum != 1 {
		t.Fatalf("meta = %+v", meta)
	}

	meta, err = s.AppendStep("t1", StepEntry{At: time.Now(), Round: 2, Success: false, Error: "boom"})
	if err != nil {
		t.Fatalf("AppendStep (2nd): %v", err)
	}
	if len(meta.Steps) != 2 || meta.RoundNum != 2 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestTaskMetaStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewTaskMetaStore(dir)
	if _, err := s.LoadOrInit("t1", TaskMeta{TaskID: "t1"}); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}

	if err := os.WriteFile(s.metaPath("t1"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := s.LoadOrInit("t1", TaskMeta{TaskID: "t1"})
	if err == nil {
		t.Fatal("expected error on corrupt meta")
	}
	var corrupt *CorruptMetaError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptMetaError, got %T: %v", err, err)
	}
}

func TestTaskMetaStore_Delete(t *testing.T) {
	dir := t.TempDir()
	s := NewTaskMetaStore(dir)
	if _, err := s.LoadOrInit("t1", TaskMeta{TaskID: "t1"}); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if err := s.Delete("t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.LoadOrInit("t1", TaskMeta{TaskID: "t1", AccountID: "fresh"}); err != nil {
		t.Fatalf("LoadOrInit after delete: %v", err)
	}
}
