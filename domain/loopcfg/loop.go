// Package loopcfg defines the budget envelope and runtime record for a
// coding loop, grounded directly on original_source/src/loops/mod.rs —
// ported field-for-field into idiomatic Go structs.
package loopcfg

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the budget envelope a loop is started with.
type Config struct {
	MaxIterations        uint32        `json:"maxIterations"`
	MaxRuntimeSeconds     uint64        `json:"maxRuntimeSeconds"`
	MaxCostUSD            float64       `json:"maxCostUsd"`
	CheckpointInterval    uint32        `json:"checkpointInterval"`
	CooldownSeconds       uint64        `json:"cooldownSeconds"`
	MaxConsecutiveErrors  uint32        `json:"maxConsecutiveErrors"`
	CompletionSignal      string        `json:"completionSignal"`
}

// DefaultConfig mirrors original_source's Default impl.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        100,
		MaxRuntimeSeconds:    14400,
		MaxCostUSD:           300.0,
		CheckpointInterval:   10,
		CooldownSeconds:      3,
		MaxConsecutiveErrors: 3,
		CompletionSignal:     "<promise>COMPLETE</promise>",
	}
}

// Status is the lifecycle state of a loop.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// StopReasonKind enumerates why a loop stopped.
type StopReasonKind string

const (
	StopCompletionSignal StopReasonKind = "completion_signal"
	StopMaxIterations    StopReasonKind = "max_iterations"
	StopCostLimit        StopReasonKind = "cost_limit"
	StopTimeLimit        StopReasonKind = "time_limit"
	StopUserStopped      StopReasonKind = "user_stopped"
	StopCircuitBreaker   StopReasonKind = "circuit_breaker"
	StopError            StopReasonKind = "error"
)

// StopReason carries the kind plus, for StopError, the underlying message.
type StopReason struct {
	Kind    StopReasonKind `json:"kind"`
	Message string         `json:"message,omitempty"`
}

// State is the supervisor's in-memory runtime record for one card's loop.
type State struct {
	CardID            string      `json:"cardId"`
	Iteration         int32       `json:"iteration"`
	Status            Status      `json:"status"`
	TotalCostUSD      float64     `json:"totalCostUsd"`
	TotalTokens       int64       `json:"totalTokens"`
	ConsecutiveErrors uint32      `json:"consecutiveErrors"`
	LastCheckpoint    *int32      `json:"lastCheckpoint,omitempty"`
	StartTime         time.Time   `json:"startTime"`
	ElapsedSeconds    uint64      `json:"elapsedSeconds"`
	Config            Config      `json:"config"`
	StopReason        *StopReason `json:"stopReason,omitempty"`
}

// New creates a fresh, running LoopState for cardID.
func New(cardID string, cfg Config) *State {
	return &State{
		CardID:    cardID,
		Status:    StatusRunning,
		StartTime: time.Now().UTC(),
		Config:    cfg,
	}
}

const maxBackoffSeconds = 300

// BackoffSeconds computes the next cooldown per spec.md §4.3:
// min(maxBackoff, baseCooldown * 2^consecutiveErrors), saturating.
func (s *State) BackoffSeconds() uint64 {
	base := s.Config.CooldownSeconds
	if s.ConsecutiveErrors == 0 {
		return base
	}

	multiplier := saturatingPow2(s.ConsecutiveErrors)
	backoff := saturatingMul(base, multiplier)

	if backoff > maxBackoffSeconds {
		return maxBackoffSeconds
	}
	return backoff
}

func saturatingPow2(exp uint32) uint64 {
	if exp >= 63 {
		return 1<<63 - 1
	}
	return uint64(1) << exp
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/b != a {
		return 1<<63 - 1
	}
	return product
}

// ShouldStop evaluates the budget precedence from spec.md §4.3:
// MaxIterations, CostLimit, TimeLimit, CircuitBreaker, in that order.
func (s *State) ShouldStop() *StopReason {
	if uint32(s.Iteration) >= s.Config.MaxIterations {
		return &StopReason{Kind: StopMaxIterations}
	}
	if s.TotalCostUSD >= s.Config.MaxCostUSD {
		return &StopReason{Kind: StopCostLimit}
	}
	if s.ElapsedSeconds >= s.Config.MaxRuntimeSeconds {
		return &StopReason{Kind: StopTimeLimit}
	}
	if s.ConsecutiveErrors >= s.Config.MaxConsecutiveErrors {
		return &StopReason{Kind: StopCircuitBreaker}
	}
	return nil
}

// ShouldCheckpoint reports whether the current iteration is a checkpoint
// boundary per spec.md §4.3.
func (s *State) ShouldCheckpoint() bool {
	if s.Config.CheckpointInterval == 0 {
		return false
	}
	return s.Iteration > 0 && uint32(s.Iteration)%s.Config.CheckpointInterval == 0
}

// Checkpoint is a durable snapshot of a loop, suitable for resuming after a
// crash. Field-for-field port of original_source's LoopCheckpoint.
type Checkpoint struct {
	ID                  string
	CardID              string
	Iteration           int32
	Platform            string
	Subscription        *string
	StateJSON           string
	LastPrompt          *string
	LastResponseSummary *string
	ModifiedFiles       []string
	CheckpointCommit    *string
	TotalCostUSD        float64
	TotalTokens         int64
	CreatedAt           time.Time
}

// RestoreState deserializes the checkpoint's embedded StateJSON. Encoding
// uses the standard library's tolerant-by-default JSON decoding (unknown
// fields are ignored, missing optional fields keep their zero value), so
// this only returns an error when StateJSON itself is not valid JSON for a
// State — a genuinely corrupted checkpoint, which callers must surface
// rather than silently skip (spec.md §4.4).
func (c *Checkpoint) RestoreState() (*State, error) {
	var st State
	if err := json.Unmarshal([]byte(c.StateJSON), &st); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", c.ID, err)
	}
	return &st, nil
}
