// Package clock computes task execution times. It is pure: no I/O, no
// wall-clock reads of its own — callers pass "now" explicitly so the
// dispatcher loop and its tests agree on what time it is.
package clock

import "time"

// Window restricts execution to an hour-of-day range [StartHour, EndHour)
// in the caller's local timezone. A nil *Window means unrestricted.
type Window struct {
	StartHour int
	EndHour   int
}

// InWindow reports whether t falls inside w. A nil w matches everything.
func InWindow(t time.Time, w *Window) bool {
	if w == nil {
		return true
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// AdvanceToNextValid returns the earliest instant >= t that satisfies w.
// If t already satisfies w, it returns t unchanged. Otherwise it returns
// StartHour:00:00 of the same day (if t is still before the window) or of
// the next day (if t is at or past EndHour).
func AdvanceToNextValid(t time.Time, w *Window) time.Time {
	if w == nil || InWindow(t, w) {
		return t
	}
	start := atHour(t, w.StartHour)
	if t.Hour() < w.StartHour {
		return start
	}
	return start.AddDate(0, 0, 1)
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// NextExecution computes the next run time for a task given its last
// execution (zero if it has never run), its interval, an optional hour
// window, and the calendar date after which the task is terminal
// (zero endDate means the task never expires).
//
// Returns the zero time when no further execution is possible (the
// candidate, and any in-window adjustment of it, falls on or after
// endDate).
func NextExecution(now, lastExecution time.Time, interval time.Duration, w *Window, endDate time.Time) time.Time {
	var candidate time.Time
	if lastExecution.IsZero() {
		candidate = now
	} else {
		candidate = lastExecution.Add(interval)
	}
	if pastEndDate(candidate, endDate) {
		return time.Time{}
	}
	adjusted := AdvanceToNextValid(candidate, w)
	if pastEndDate(adjusted, endDate) {
		return time.Time{}
	}
	return adjusted
}

func pastEndDate(t, endDate time.Time) bool {
	if endDate.IsZero() {
		return false
	}
	ty, tm, td := t.Date()
	ey, em, ed := endDate.Date()
	t0 := time.Date(ty, tm, td, 0, 0, 0, 0, t.Location())
	e0 := time.Date(ey, em, ed, 0, 0, 0, 0, endDate.Location())
	return !t0.Before(e0)
}
