// Package dispatch runs the single dispatch loop and the Global
// Execution Lock that serializes every RunOnce invocation against every
// other task. Control-API mutations call Wake to interrupt the loop's
// idle sleep; ExecuteNow lets a caller run one task synchronously,
// competing with the loop for the same lock.
package dispatch
