package storage

// Package storage provides a minimal persistence layer for operational
// data that is not part of the task registry snapshot:
//
//   - Step-history archive (completed step records, once superseded in a
//     task's live meta file)
//   - Optional notifier dedup state (to survive restarts)
