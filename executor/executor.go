// Package executor implements the Action Executor (C7): it applies the
// action tokens produced by a state-machine transition against collaborators,
// in order, aborting on the first failure. Grounded on spec.md §4.7 and on
// the teacher's services/automation.Service shape — a struct of narrow
// collaborator interfaces assembled by New, the same seam
// loopsupervisor.Supervisor uses for C4/C5/C6.
package executor

import (
	"context"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/internal/obslog"
	"github.com/cardforge/cardforge/platform"
)

// Loops is the subset of loopsupervisor.Supervisor's public API the
// executor needs — StartLoop/PauseLoop/StopLoop — kept narrow so this
// package never depends on loopsupervisor's concrete type.
type Loops interface {
	StartLoop(ctx context.Context, cardID string, cfg loopcfg.Config) (*loopcfg.State, error)
	PauseLoop(cardID string) (*loopcfg.State, error)
	StopLoop(cardID string) (*loopcfg.State, error)
}

// AgentRegistrar hands the worktree/prompt context a loop's driver cannot
// see on its own to the platform adapter before StartLoop fires.
type AgentRegistrar interface {
	Register(cardID, worktreePath, prompt string, cfg platform.SessionConfig)
}

// GitClient creates per-card branches/worktrees and pushes them, per
// spec.md §4.7's CreateGitWorktree/CreatePullRequest rows.
type GitClient interface {
	CreateWorktree(ctx context.Context, cardID string) (branch, path string, err error)
	Push(ctx context.Context, worktreePath, branch string) (compareURL string, err error)
}

// ConfigSyncer lands a per-project configuration bundle onto a worktree's
// agent config directory before the loop's first session starts.
// Satisfied by platform.ConfigSyncer (SPEC_FULL.md §12). Optional: a nil
// ConfigSyncer simply skips the sync step.
type ConfigSyncer interface {
	Sync(ctx context.Context, cardID, configDir string) (event.Event, error)
}

// Integrations is every external-system collaborator the build/deploy
// action rows delegate to. Each observation method additionally returns a
// synthetic trigger to feed back through the state machine when the
// integration's own polling loop (outside this package, see
// scheduler) completes a step — the executor's job here is only to kick
// the external system off or record an observation, not to poll.
type Integrations interface {
	TriggerBuild(ctx context.Context, c *card.WithFlags) error
	MonitorBuild(ctx context.Context, c *card.WithFlags) (*card.Trigger, error)
	TriggerDeploy(ctx context.Context, c *card.WithFlags) error
	MonitorArgoCD(ctx context.Context, c *card.WithFlags) (*card.Trigger, error)
	RunHealthChecks(ctx context.Context, c *card.WithFlags) (*card.Trigger, error)
	CollectErrorContext(ctx context.Context, c *card.WithFlags) (*card.CardError, error)
}

// Repository is the narrow persistence seam the executor needs: save the
// card fields an action mutated, and record a captured error.
type Repository interface {
	UpdateCard(ctx context.Context, c *card.Card) error
	CreateCardError(ctx context.Context, e *card.CardError) error
}

// CardTransitioner feeds a synthetic trigger (produced by an integration
// observation) back through the state machine, outside of the transition
// that is currently executing its own action list.
type CardTransitioner interface {
	ApplyTrigger(ctx context.Context, cardID string, trigger card.Trigger) error
}

// EventPublisher is the Event Bus seam (C1).
type EventPublisher interface {
	Publish(e event.Event)
}

// Metrics records a per-card rollup, invoked by the RecordMetrics action.
type Metrics interface {
	RecordForCard(cardID string)
}

// Executor applies one transition's action list against its collaborators.
type Executor struct {
	loops        Loops
	agent        AgentRegistrar
	git          GitClient
	configSyncer ConfigSyncer
	integrations Integrations
	repo         Repository
	cards        CardTransitioner
	events       EventPublisher
	metrics      Metrics
	log          *obslog.Logger
}

// New constructs an Executor wired to its collaborators. Any collaborator
// may be nil for actions that are not exercised (e.g. tests covering only
// a subset of the action table).
func New(loops Loops, agent AgentRegistrar, git GitClient, configSyncer ConfigSyncer, integrations Integrations, repo Repository, cards CardTransitioner, events EventPublisher, metrics Metrics, log *obslog.Logger) *Executor {
	if log == nil {
		log = obslog.Noop()
	}
	return &Executor{
		loops:        loops,
		agent:        agent,
		git:          git,
		configSyncer: configSyncer,
		integrations: integrations,
		repo:         repo,
		cards:        cards,
		events:       events,
		metrics:      metrics,
		log:          log,
	}
}

// Execute applies actions against c in order, aborting on the first
// failure. Each action runs once per call and the executor never retries a
// failed action itself — spec.md §4.7. Running the same list a second time
// repeats its side effects (e.g. RestartLoopWithError increments the error
// count again).
func (e *Executor) Execute(ctx context.Context, c *card.WithFlags, actions []card.Action) error {
	for _, action := range actions {
		if err := e.apply(ctx, c, action); err != nil {
			return apperr.Wrapf(apperr.CodeIntegrationError, err, "action %s failed for card %s", action, c.ID)
		}
	}
	return nil
}

func (e *Executor) apply(ctx context.Context, c *card.WithFlags, action card.Action) error {
	switch action {
	case card.ActionCreateGitWorktree:
		return e.createGitWorktree(ctx, c)
	case card.ActionStartLoop:
		return e.startLoop(ctx, c)
	case card.ActionPauseLoop:
		return e.pauseLoop(ctx, c)
	case card.ActionStopLoop:
		return e.stopLoop(ctx, c)
	case card.ActionCreatePullRequest:
		return e.createPullRequest(ctx, c)
	case card.ActionTriggerBuild:
		return e.triggerBuild(ctx, c)
	case card.ActionMonitorBuild:
		return e.observeAndFeed(ctx, c, e.integrations.MonitorBuild)
	case card.ActionTriggerDeploy:
		return e.triggerDeploy(ctx, c)
	case card.ActionMonitorArgoCD:
		return e.observeAndFeed(ctx, c, e.integrations.MonitorArgoCD)
	case card.ActionRunHealthChecks:
		return e.observeAndFeed(ctx, c, e.integrations.RunHealthChecks)
	case card.ActionCollectErrorContext:
		return e.collectErrorContext(ctx, c)
	case card.ActionRestartLoopWithError:
		return e.restartLoopWithError(ctx, c)
	case card.ActionNotifyUser:
		e.publish(event.NewUserNotification(c.ID, "card "+c.ID+" needs attention"))
		return nil
	case card.ActionRecordMetrics:
		if e.metrics != nil {
			e.metrics.RecordForCard(c.ID)
		}
		e.publish(event.NewMetricsRecorded(c.ID))
		return nil
	default:
		return apperr.Newf(apperr.CodeBadArgument, "unknown action %q", action)
	}
}

func (e *Executor) publish(ev event.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}

// observeAndFeed runs an integration observation and, if it yields a
// trigger, feeds it back through the state machine (spec.md §4.7: "on
// observations, arrange for synthetic triggers to be fed back through C2").
func (e *Executor) observeAndFeed(ctx context.Context, c *card.WithFlags, observe func(context.Context, *card.WithFlags) (*card.Trigger, error)) error {
	trigger, err := observe(ctx, c)
	if err != nil {
		return err
	}
	if trigger == nil || e.cards == nil {
		return nil
	}
	return e.cards.ApplyTrigger(ctx, c.ID, *trigger)
}
