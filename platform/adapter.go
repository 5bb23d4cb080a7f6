// Package platform defines the Agent Platform Adapter (C5) contract: an
// abstraction over one external CLI that runs a coding agent inside a git
// worktree. Grounded on spec.md §4.5 and, for the subprocess-management
// idiom (mutex-guarded *exec.Cmd, running flag, exec.CommandContext,
// Process.Kill()), on the teacher's test/contract/neoexpress.go.
package platform

import (
	"context"
	"time"
)

// SessionConfig carries the per-session overrides a caller may supply to
// start_session: environment variables to inject (notably a per-subscription
// config directory) and the completion sentinel the parser should watch for.
type SessionConfig struct {
	Subscription     string
	ConfigDir        string
	CompletionSignal string
	Env              map[string]string
	MaxTurns         uint32
	Timeout          time.Duration
}

// State is the coarse session lifecycle reported by GetSessionStatus.
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateWaiting   State = "waiting"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Handle identifies one live or finished agent session.
type Handle struct {
	ID            string
	CardID        string
	Platform      string
	WorktreePath  string
	StartedAt     time.Time
}

// Status is a point-in-time snapshot of a running or finished session.
type Status struct {
	State       State
	Iteration   int32
	RuntimeMS   int64
	TotalCostUSD float64
	TotalTokens  int64
}

// Result is what stop_session (or a natural process exit) reports back:
// accumulated output, totals, and how the session ended.
type Result struct {
	EndReason    string
	Output       string
	Iteration    int32
	TotalTokens  int64
	TotalCostUSD float64
	CommitSHA    string
}

// Adapter is the capability set spec.md §4.5 requires of any coding-agent
// CLI integration.
type Adapter interface {
	// Name is the adapter's static identifier, e.g. "claude-code".
	Name() string

	// IsAvailable reports whether a runnable binary is present, installing
	// it on demand into a known location if the adapter supports that.
	IsAvailable(ctx context.Context) bool

	// StartSession spawns the agent as a child process rooted at
	// worktreePath, with prompt as its first turn. Fails with a
	// *apperr.Error carrying CodeBinaryNotFound, CodeProcessError, or
	// CodeSubscriptionLimit.
	StartSession(ctx context.Context, cardID, worktreePath, prompt string, cfg SessionConfig) (*Handle, error)

	// StopSession signals termination, awaits exit with a bounded grace
	// period, and returns the accumulated Result.
	StopSession(ctx context.Context, h *Handle) (*Result, error)

	// IsSessionRunning is a non-destructive liveness probe.
	IsSessionRunning(h *Handle) bool

	// GetSessionStatus reports the session's current totals and coarse
	// lifecycle state.
	GetSessionStatus(h *Handle) (*Status, error)
}
