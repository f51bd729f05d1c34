// Package persistence provides the two durable stores the scheduler
// needs: a per-task meta document (identity, cadence, mode, step
// history) and a whole-registry snapshot used for startup recovery.
// Both use write-temp-file-then-rename so a crash mid-write never
// leaves a half-written file behind.
package persistence
