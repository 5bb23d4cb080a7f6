// Package event defines the tagged union broadcast by the Event Bus (C1),
// grounded on original_source/src/events/mod.rs. Go has no enum-with-payload
// sum type, so each variant is expressed the way the teacher expresses its
// own tagged unions (domain/automation's JobStatus-plus-struct pattern,
// scaled up): a Type discriminator plus every variant's fields flattened
// onto one struct, with only the fields relevant to Type populated.
package event

import (
	"time"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/loopcfg"
)

// Type discriminates an Event's variant.
type Type string

const (
	TypeCardCreated       Type = "card_created"
	TypeCardUpdated       Type = "card_updated"
	TypeStateChanged      Type = "state_changed"
	TypeLoopStarted       Type = "loop_started"
	TypeLoopIteration     Type = "loop_iteration"
	TypeLoopPaused        Type = "loop_paused"
	TypeLoopStopped       Type = "loop_stopped"
	TypeLoopCompleted     Type = "loop_completed"
	TypeBuildStatus       Type = "build_status"
	TypeDeployStatus      Type = "deploy_status"
	TypeErrorDetected     Type = "error_detected"
	TypeWorktreeCreated   Type = "worktree_created"
	TypePullRequestCreated Type = "pull_request_created"
	TypeUserNotification  Type = "user_notification"
	TypeMetricsRecorded   Type = "metrics_recorded"
	TypeConfigSynced      Type = "config_synced"
)

// LoopCompletionResult mirrors loopcfg.StopReasonKind one-for-one (the same
// seven values, CompletionSignal included) for the LoopCompleted event
// payload (original_source's events::LoopCompletionResult).
type LoopCompletionResult string

const (
	ResultCompletionSignal LoopCompletionResult = "completion_signal"
	ResultMaxIterations    LoopCompletionResult = "max_iterations"
	ResultCostLimit        LoopCompletionResult = "cost_limit"
	ResultTimeLimit        LoopCompletionResult = "time_limit"
	ResultUserStopped      LoopCompletionResult = "user_stopped"
	ResultCircuitBreaker   LoopCompletionResult = "circuit_breaker"
	ResultError            LoopCompletionResult = "error"
)

// Event is every variant's fields flattened onto one struct; Type says
// which fields are meaningful. Every variant carries CardID and Timestamp
// (spec.md §3); some additionally carry ProjectID.
type Event struct {
	Type      Type      `json:"type"`
	CardID    string    `json:"card_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// StateChanged
	FromState card.State   `json:"from_state,omitempty"`
	ToState   card.State   `json:"to_state,omitempty"`
	Trigger   card.Trigger `json:"trigger,omitempty"`

	// LoopIteration
	Iteration  int32   `json:"iteration,omitempty"`
	TokensUsed int64   `json:"tokens_used,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`

	// LoopCompleted
	Result          LoopCompletionResult `json:"result,omitempty"`
	TotalIterations int32                `json:"total_iterations,omitempty"`
	TotalCostUSD    float64              `json:"total_cost_usd,omitempty"`
	TotalTokens     int64                `json:"total_tokens,omitempty"`

	// LoopStopped
	StopReason *loopcfg.StopReason `json:"stop_reason,omitempty"`

	// BuildStatus
	RunID      int64   `json:"run_id,omitempty"`
	Status     string  `json:"status,omitempty"`
	Conclusion *string `json:"conclusion,omitempty"`

	// DeployStatus
	AppName      string `json:"app_name,omitempty"`
	SyncStatus   string `json:"sync_status,omitempty"`
	HealthStatus string `json:"health_status,omitempty"`

	// ErrorDetected
	ErrorID   string `json:"error_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message,omitempty"`
	Category  string `json:"category,omitempty"`

	// WorktreeCreated
	WorktreePath string `json:"worktree_path,omitempty"`
	BranchName   string `json:"branch_name,omitempty"`

	// PullRequestCreated
	PRURL string `json:"pr_url,omitempty"`

	// ConfigSynced
	ClaudeMDSynced bool `json:"claude_md_synced,omitempty"`
	SkillsSynced   int  `json:"skills_synced,omitempty"`
	PatternsSynced bool `json:"patterns_synced,omitempty"`

	// CardUpdated carries a full card snapshot.
	Card *card.Card `json:"card,omitempty"`
}

func base(t Type, cardID string) Event {
	return Event{Type: t, CardID: cardID, Timestamp: time.Now().UTC()}
}

// NewCardCreated builds a CardCreated event.
func NewCardCreated(cardID, projectID string) Event {
	e := base(TypeCardCreated, cardID)
	e.ProjectID = projectID
	return e
}

// NewCardUpdated builds a CardUpdated event.
func NewCardUpdated(c *card.Card) Event {
	e := base(TypeCardUpdated, c.ID)
	e.Card = c
	return e
}

// NewStateChanged builds a StateChanged event.
func NewStateChanged(cardID string, from, to card.State, trigger card.Trigger) Event {
	e := base(TypeStateChanged, cardID)
	e.FromState, e.ToState, e.Trigger = from, to, trigger
	return e
}

// NewLoopStarted builds a LoopStarted event.
func NewLoopStarted(cardID string) Event { return base(TypeLoopStarted, cardID) }

// NewLoopIteration builds a LoopIteration event.
func NewLoopIteration(cardID string, iteration int32, tokens int64, cost float64) Event {
	e := base(TypeLoopIteration, cardID)
	e.Iteration, e.TokensUsed, e.CostUSD = iteration, tokens, cost
	return e
}

// NewLoopPaused builds a LoopPaused event.
func NewLoopPaused(cardID string, iteration int32) Event {
	e := base(TypeLoopPaused, cardID)
	e.Iteration = iteration
	return e
}

// NewLoopStopped builds a LoopStopped event.
func NewLoopStopped(cardID string, iteration int32, reason *loopcfg.StopReason) Event {
	e := base(TypeLoopStopped, cardID)
	e.Iteration = iteration
	e.StopReason = reason
	return e
}

// NewLoopCompleted builds a LoopCompleted event.
func NewLoopCompleted(cardID string, result LoopCompletionResult, iterations int32, cost float64, tokens int64) Event {
	e := base(TypeLoopCompleted, cardID)
	e.Result = result
	e.TotalIterations = iterations
	e.TotalCostUSD = cost
	e.TotalTokens = tokens
	return e
}

// NewBuildStatus builds a BuildStatus event.
func NewBuildStatus(cardID string, runID int64, status string, conclusion *string) Event {
	e := base(TypeBuildStatus, cardID)
	e.RunID, e.Status, e.Conclusion = runID, status, conclusion
	return e
}

// NewDeployStatus builds a DeployStatus event.
func NewDeployStatus(cardID, appName, syncStatus, healthStatus string) Event {
	e := base(TypeDeployStatus, cardID)
	e.AppName, e.SyncStatus, e.HealthStatus = appName, syncStatus, healthStatus
	return e
}

// NewErrorDetected builds an ErrorDetected event.
func NewErrorDetected(cardID, errorID, errorType, message, category string) Event {
	e := base(TypeErrorDetected, cardID)
	e.ErrorID, e.ErrorType, e.Message, e.Category = errorID, errorType, message, category
	return e
}

// NewWorktreeCreated builds a WorktreeCreated event.
func NewWorktreeCreated(cardID, worktreePath, branchName string) Event {
	e := base(TypeWorktreeCreated, cardID)
	e.WorktreePath, e.BranchName = worktreePath, branchName
	return e
}

// NewPullRequestCreated builds a PullRequestCreated event.
func NewPullRequestCreated(cardID, prURL string) Event {
	e := base(TypePullRequestCreated, cardID)
	e.PRURL = prURL
	return e
}

// NewUserNotification builds a UserNotification event.
func NewUserNotification(cardID, message string) Event {
	e := base(TypeUserNotification, cardID)
	e.Message = message
	return e
}

// NewMetricsRecorded builds a MetricsRecorded event.
func NewMetricsRecorded(cardID string) Event { return base(TypeMetricsRecorded, cardID) }

// NewConfigSynced builds a ConfigSynced event (supplemented feature, see
// SPEC_FULL.md §12).
func NewConfigSynced(cardID string, claudeMD bool, skills int, patterns bool) Event {
	e := base(TypeConfigSynced, cardID)
	e.ClaudeMDSynced, e.SkillsSynced, e.PatternsSynced = claudeMD, skills, patterns
	return e
}
