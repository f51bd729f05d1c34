// Package agent defines the scheduler's view of the browser-automation
// collaborator: a handle exposing one iteration step plus login probes.
// Everything the agent does inside RunOnce (browser driving, content
// generation, MCP tool calls) is opaque to the scheduler.
package agent

import "context"

// LoginState is the closed set of login probe outcomes.
type LoginState string

const (
	LoginUnknown   LoginState = "unknown"
	LoginLoggedIn  LoginState = "logged_in"
	LoginLoggedOut LoginState = "not_logged_in"
)

// Agent is the contract the scheduler drives. Implementations must be
// safe to call only while the caller holds the task's slot in the
// Global Execution Lock — the scheduler never calls RunOnce concurrently
// with itself for the same or any other task.
type Agent interface {
	// RunOnce performs exactly one iteration of the operator workflow.
	// true means the task may be scheduled again; the scheduler still
	// independently checks the end date. An error is converted by the
	// caller into task status "error"; it is never retried here.
	RunOnce(ctx context.Context) (bool, error)

	// LoginStatus is a cheap, side-effect-free probe.
	LoginStatus(ctx context.Context) (LoginState, error)

	// BeginLogin starts a credential exchange and returns a QR code
	// payload for the control plane to relay, or nil if already logged in.
	BeginLogin(ctx context.Context) ([]byte, error)

	// ConfirmLogin finalizes a credential exchange and returns the
	// resulting login state.
	ConfirmLogin(ctx context.Context) (LoginState, error)

	// CredentialsPath is the task-owned source file the scheduler copies
	// into the shared cookie file before RunOnce and removes after.
	CredentialsPath() string
}

// Factory builds an Agent from its reconstruction parameters. The
// scheduler calls this once per task, at creation and again at startup
// recovery (from the snapshot's kwargs + sys_type).
type Factory func(sysType string, credentialsDir string, kwargs []byte) (Agent, error)
