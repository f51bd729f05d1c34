// Package task owns the scheduler's task registry: identity, cadence,
// status, and timestamps for every task, plus the account-uniqueness and
// at-most-one-running invariants. All mutation is synchronous under a
// single registry lock; the dispatcher and control API only ever see
// Snapshot copies.
package task
