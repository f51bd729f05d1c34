package task

import (
	"testing"
	"time"

	"opsched/internal/agent"
	"opsched/internal/clock"
	"opsched/internal/persistence"
)

func noopFactory(sysType, credentialsDir string, kwargs []byte) (agent.Agent, error) {
	return agent.NewNoopAgent(credentialsDir), nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	meta := persistence.NewTaskMetaStore(t.TempDir())
	return NewRegistry(meta, noopFactory)
}

func mustDate(y int, m time.Month, d, h, min, s int) time.Time {
	return time.Date(y, m, d, h, min, s, 0, time.Local)
}

func TestRegistry_AccountUniqueness(t *testing.T) {
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 10, 0, 0)

	params := CreateParams{AccountID: "op1", TaskType: "social-account-operator", IntervalSeconds: 3600}
	if _, err := r.Add(now, params); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := r.Add(now, params)
	if err != ErrAccountTaken {
		t.Fatalf("Add (dup) = %v, want ErrAccountTaken", err)
	}
}

func TestRegistry_ReorderEarlier(t *testing.T) {
	// Scenario 5: next 14:00, range [8,22], offset -7200 -> 12:00.
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 6, 0, 0)
	w := &clock.Window{StartHour: 8, EndHour: 22}

	snap, err := r.Add(now, CreateParams{
		AccountID: "a1", TaskType: "t", IntervalSeconds: 3600,
		ValidHourRange: w, EndDate: mustDate(2026, 2, 4, 0, 0, 0),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Force next_execution_time to 14:00 directly via Reorder deltas from the computed 08:00.
	reordered, err := r.Reorder(now, snap.TaskID, int((6 * time.Hour).Seconds()))
	if err != nil {
		t.Fatalf("Reorder (set to 14:00): %v", err)
	}
	want := mustDate(2026, 1, 5, 14, 0, 0)
	if !reordered.NextExecutionTime.Equal(want) {
		t.Fatalf("next = %v, want %v", reordered.NextExecutionTime, want)
	}

	reordered, err = r.Reorder(now, snap.TaskID, -7200)
	if err != nil {
		t.Fatalf("Reorder(-7200): %v", err)
	}
	want = mustDate(2026, 1, 5, 12, 0, 0)
	if !reordered.NextExecutionTime.Equal(want) {
		t.Fatalf("next = %v, want %v", reordered.NextExecutionTime, want)
	}
}

func TestRegistry_ReorderPastEndDate(t *testing.T) {
	// Scenario 6: end_date = today+1, next = today 20:00, offset +48h -> completed.
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 6, 0, 0)
	w := &clock.Window{StartHour: 8, EndHour: 22}
	endDate := mustDate(2026, 1, 6, 0, 0, 0)

	snap, err := r.Add(now, CreateParams{
		AccountID: "a1", TaskType: "t", IntervalSeconds: 3600,
		ValidHourRange: w, EndDate: endDate,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Move next to 20:00 today.
	if _, err := r.Reorder(now, snap.TaskID, int((12 * time.Hour).Seconds())); err != nil {
		t.Fatalf("Reorder (set to 20:00): %v", err)
	}

	got, err := r.Reorder(now, snap.TaskID, int((48 * time.Hour).Seconds()))
	if err != nil {
		t.Fatalf("Reorder(+48h): %v", err)
	}
	if got.Status != StatusCompleted || !got.NextExecutionTime.IsZero() {
		t.Fatalf("got = %+v, want completed/null", got)
	}
}

func TestRegistry_ReorderIllegalStateWhenRunning(t *testing.T) {
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 10, 0, 0)
	snap, err := r.Add(now, CreateParams{AccountID: "a1", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, ok := r.BeginRun(snap.TaskID); !ok {
		t.Fatal("BeginRun failed")
	}
	if _, err := r.Reorder(now, snap.TaskID, 10); err != ErrIllegalState {
		t.Fatalf("Reorder while running = %v, want ErrIllegalState", err)
	}
}

func TestRegistry_DeleteRunningIsDeferred(t *testing.T) {
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 10, 0, 0)
	snap, err := r.Add(now, CreateParams{AccountID: "a1", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, ok := r.BeginRun(snap.TaskID); !ok {
		t.Fatal("BeginRun failed")
	}
	if err := r.Delete(snap.TaskID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := r.Get(snap.TaskID); !ok {
		t.Fatal("task should still exist while running")
	}

	_, removed, err := r.CompleteRun(now.Add(time.Minute), snap.TaskID, nil)
	if err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	if !removed {
		t.Fatal("expected deferred delete to take effect on CompleteRun")
	}
	if _, ok := r.Get(snap.TaskID); ok {
		t.Fatal("task should be gone after deferred delete")
	}
}

func TestRegistry_PauseResume(t *testing.T) {
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 10, 0, 0)
	snap, err := r.Add(now, CreateParams{AccountID: "a1", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	paused, err := r.Pause(now, snap.TaskID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != StatusPaused || !paused.NextExecutionTime.IsZero() {
		t.Fatalf("paused = %+v", paused)
	}

	resumed, err := r.Resume(now.Add(time.Hour), snap.TaskID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != StatusPending || resumed.NextExecutionTime.IsZero() {
		t.Fatalf("resumed = %+v", resumed)
	}
}

func TestRegistry_SerialDispatchOrdering(t *testing.T) {
	// Scenario 3 (partial: ordering only; actual RunOnce serialization is
	// internal/dispatch's job). A created before B and both due at the
	// same next_execution_time -> A sorts first (created_at tie break).
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 9, 0, 0)

	a, err := r.Add(now, CreateParams{AccountID: "a1", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add A: %v", err)
	}
	b, err := r.Add(now.Add(time.Second), CreateParams{AccountID: "a2", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add B: %v", err)
	}
	if _, err := r.Reorder(now, b.TaskID, -1); err != nil {
		t.Fatalf("Reorder B: %v", err)
	}

	due := now.Add(time.Hour)
	got, ok := r.PickDue(due)
	if !ok || got != a.TaskID {
		t.Fatalf("PickDue = (%v, %v), want (%s, true)", got, ok, a.TaskID)
	}
}

func TestRegistry_CompleteRun_Error_StillSchedulable(t *testing.T) {
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 9, 0, 0)
	endDate := mustDate(2026, 2, 4, 0, 0, 0)
	snap, err := r.Add(now, CreateParams{AccountID: "a1", TaskType: "t", IntervalSeconds: 3600, EndDate: endDate})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, ok := r.BeginRun(snap.TaskID); !ok {
		t.Fatal("BeginRun failed")
	}

	got, removed, err := r.CompleteRun(now.Add(time.Minute), snap.TaskID, errTest)
	if err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	if removed {
		t.Fatal("should not be removed")
	}
	if got.Status != StatusError || got.NextExecutionTime.IsZero() {
		t.Fatalf("got = %+v", got)
	}
}

func TestRegistry_List_NullLast(t *testing.T) {
	r := newTestRegistry(t)
	now := mustDate(2026, 1, 5, 9, 0, 0)

	a, err := r.Add(now, CreateParams{AccountID: "a1", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add A: %v", err)
	}
	if _, err := r.Pause(now, a.TaskID); err != nil {
		t.Fatalf("Pause A: %v", err)
	}
	b, err := r.Add(now, CreateParams{AccountID: "a2", TaskType: "t", IntervalSeconds: 3600})
	if err != nil {
		t.Fatalf("Add B: %v", err)
	}

	got := r.List(Filter{})
	if len(got) != 2 || got[0].TaskID != b.TaskID || got[1].TaskID != a.TaskID {
		t.Fatalf("List order = %+v", got)
	}
}

var errTest = testError("boom")

type testError string

func (e testError) Error() string { return string(e) }
