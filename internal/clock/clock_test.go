package clock

import (
	"testing"
	"time"
)

func mustDate(y int, m time.Month, d, h, min, s int) time.Time {
	return time.Date(y, m, d, h, min, s, 0, time.Local)
}

func TestInWindow(t *testing.T) {
	w := &Window{StartHour: 8, EndHour: 22}
	cases := []struct {
		name string
		t    time.Time
		w    *Window
		want bool
	}{
		{"nil window always matches", mustDate(2026, 1, 5, 3, 0, 0), nil, true},
		{"before start", mustDate(2026, 1, 5, 7, 59, 59), w, false},
		{"at start", mustDate(2026, 1, 5, 8, 0, 0), w, true},
		{"inside", mustDate(2026, 1, 5, 12, 0, 0), w, true},
		{"at end is exclusive", mustDate(2026, 1, 5, 22, 0, 0), w, false},
		{"after end", mustDate(2026, 1, 5, 23, 0, 0), w, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InWindow(c.t, c.w); got != c.want {
				t.Errorf("InWindow(%v) = %v, want %v", c.t, got, c.want)
			}
		})
	}
}

func TestAdvanceToNextValid(t *testing.T) {
	w := &Window{StartHour: 8, EndHour: 22}
	cases := []struct {
		name string
		t    time.Time
		w    *Window
		want time.Time
	}{
		{"already in window", mustDate(2026, 1, 5, 12, 0, 0), w, mustDate(2026, 1, 5, 12, 0, 0)},
		{"before window, same day", mustDate(2026, 1, 5, 7, 30, 0), w, mustDate(2026, 1, 5, 8, 0, 0)},
		{"after window, rolls to next day", mustDate(2026, 1, 5, 22, 45, 30), w, mustDate(2026, 1, 6, 8, 0, 0)},
		{"nil window is identity", mustDate(2026, 1, 5, 22, 45, 30), nil, mustDate(2026, 1, 5, 22, 45, 30)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := AdvanceToNextValid(c.t, c.w); !got.Equal(c.want) {
				t.Errorf("AdvanceToNextValid(%v) = %v, want %v", c.t, got, c.want)
			}
		})
	}
}

func TestNextExecution_HourWindowDeferral(t *testing.T) {
	// Scenario 1: first dispatch at 07:30 with a [8,22] window defers to 08:00 the same day.
	now := mustDate(2026, 1, 5, 7, 30, 0)
	w := &Window{StartHour: 8, EndHour: 22}
	endDate := mustDate(2026, 2, 4, 0, 0, 0)

	got := NextExecution(now, time.Time{}, time.Hour, w, endDate)
	want := mustDate(2026, 1, 5, 8, 0, 0)
	if !got.Equal(want) {
		t.Fatalf("NextExecution = %v, want %v", got, want)
	}
}

func TestNextExecution_OvernightWrap(t *testing.T) {
	// Scenario 2: a run completing at 21:45:30 with a 1h interval lands at
	// 22:45:30, which is outside [8,22), so the next run defers to 08:00 tomorrow.
	last := mustDate(2026, 1, 5, 21, 45, 30)
	w := &Window{StartHour: 8, EndHour: 22}
	endDate := mustDate(2026, 2, 4, 0, 0, 0)

	got := NextExecution(last, last, time.Hour, w, endDate)
	want := mustDate(2026, 1, 6, 8, 0, 0)
	if !got.Equal(want) {
		t.Fatalf("NextExecution = %v, want %v", got, want)
	}
}

func TestNextExecution_EndDateTermination(t *testing.T) {
	last := mustDate(2026, 1, 5, 20, 0, 0)
	w := &Window{StartHour: 8, EndHour: 22}
	// Candidate (last + interval) lands on endDate itself: terminal.
	endDate := mustDate(2026, 1, 5, 0, 0, 0)

	got := NextExecution(mustDate(2026, 1, 5, 20, 0, 1), last, time.Hour, w, endDate)
	if !got.IsZero() {
		t.Fatalf("NextExecution = %v, want zero (terminal)", got)
	}
}

func TestNextExecution_AdjustedPastEndDate(t *testing.T) {
	// Candidate itself is before endDate, but the in-window adjustment
	// rolls it onto or past endDate, which must also terminate the task.
	last := mustDate(2026, 1, 5, 21, 30, 0)
	w := &Window{StartHour: 8, EndHour: 22}
	endDate := mustDate(2026, 1, 6, 0, 0, 0) // candidate's adjusted day is the end date

	got := NextExecution(mustDate(2026, 1, 5, 21, 30, 0), last, time.Hour, w, endDate)
	if !got.IsZero() {
		t.Fatalf("NextExecution = %v, want zero (adjusted time hits end date)", got)
	}
}

func TestNextExecution_FirstDispatchNoWindow(t *testing.T) {
	now := mustDate(2026, 1, 5, 3, 0, 0)
	got := NextExecution(now, time.Time{}, time.Hour, nil, time.Time{})
	if !got.Equal(now) {
		t.Fatalf("NextExecution = %v, want %v", got, now)
	}
}
