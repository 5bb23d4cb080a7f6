// Package engine is the glue the spec leaves unnamed: it turns an
// accepted trigger into a persisted state transition plus its action
// list, tying the State Machine (C2), the Action Executor (C7), and the
// repository together behind the two narrow interfaces the Loop
// Supervisor (C3) and Action Executor (C7) already depend on
// (loopsupervisor.CardTransitioner, executor.CardTransitioner) — neither
// of those packages is allowed to see the transition table or the
// repository directly, per spec.md §9's "shared mutable supervisor"
// note, so something above both has to hold the wiring. Grounded on the
// teacher's services/automation.Service, which plays the same
// orchestrating role between its trigger evaluator and its job
// dispatcher.
package engine

import (
	"context"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/internal/obslog"
	"github.com/cardforge/cardforge/statemachine"
)

// Repository is the narrow persistence slice Engine needs.
type Repository interface {
	GetCard(ctx context.Context, id string) (*card.WithFlags, error)
	UpdateCardState(ctx context.Context, cardID string, from, to card.State, trigger card.Trigger) error
}

// ActionRunner executes one transition's action list. Satisfied by
// *executor.Executor.
type ActionRunner interface {
	Execute(ctx context.Context, c *card.WithFlags, actions []card.Action) error
}

// EventPublisher is the Event Bus's public face to Engine.
type EventPublisher interface {
	Publish(e event.Event)
}

// Engine wires the State Machine, Action Executor, repository, and Event
// Bus behind the two transition-applying contracts the rest of the
// system depends on.
type Engine struct {
	repo   Repository
	runner ActionRunner
	events EventPublisher
	log    *obslog.Logger
}

// New builds an Engine.
func New(repo Repository, runner ActionRunner, events EventPublisher, log *obslog.Logger) *Engine {
	if log == nil {
		log = obslog.Noop()
	}
	return &Engine{repo: repo, runner: runner, events: events, log: log}
}

// ApplyTrigger loads cardID, attempts the (state, trigger) transition,
// persists the outcome, and runs the resulting action list. Satisfies
// executor.CardTransitioner, used to feed synthetic triggers observed by
// integration pollers (spec.md §4.7) back through the state machine.
func (e *Engine) ApplyTrigger(ctx context.Context, cardID string, trigger card.Trigger) error {
	c, err := e.repo.GetCard(ctx, cardID)
	if err != nil {
		return err
	}

	from := c.State
	actions, err := statemachine.Transition(c, trigger)
	if err != nil {
		return err
	}

	if err := e.repo.UpdateCardState(ctx, cardID, from, c.State, trigger); err != nil {
		return err
	}
	e.events.Publish(event.NewStateChanged(cardID, from, c.State, trigger))

	if len(actions) == 0 {
		return nil
	}
	return e.runner.Execute(ctx, c, actions)
}

// ApplyStopReason maps a loop's terminal StopReason onto the state
// machine trigger it implies, per spec.md §7's resource-limit/corruption
// taxonomy, and applies it through the same path as ApplyTrigger.
// Satisfies loopsupervisor.CardTransitioner.
//
// StopUserStopped is deliberately not forwarded to the state machine: per
// spec.md §9's Open Questions, a user-initiated stop leaves the loop
// Stopped but does not by itself fail or complete the card.
//
// The coding agent loop only ever runs against a card sitting in Coding
// or ErrorFixing (spec.md §4.2's StartLoop/RestartLoopWithError actions),
// and those two states disagree on which triggers are even defined —
// Coding accepts LoopComplete/ErrorDetected, ErrorFixing accepts
// FixApplied/MaxRetriesExceeded. applyLoopOutcome dispatches on the
// card's current state so it always offers the transition table a
// trigger that state actually defines.
func (e *Engine) ApplyStopReason(ctx context.Context, cardID string, reason loopcfg.StopReason) error {
	switch reason.Kind {
	case loopcfg.StopUserStopped:
		return nil
	case loopcfg.StopCompletionSignal:
		return e.applyLoopOutcome(ctx, cardID, true)
	case loopcfg.StopMaxIterations, loopcfg.StopCostLimit, loopcfg.StopTimeLimit,
		loopcfg.StopCircuitBreaker, loopcfg.StopError:
		return e.applyLoopOutcome(ctx, cardID, false)
	default:
		return apperr.Newf(apperr.CodeBadArgument, "unrecognized stop reason kind %q", reason.Kind)
	}
}

// applyLoopOutcome applies a completed-or-not loop outcome against
// whichever of the two loop-bearing states the card currently occupies.
//
// From Coding: a completion signal is LoopComplete, anything else is
// ErrorDetected (guarded by UnderRetryLimit — a guard failure here means
// the invariant in spec.md §3 was already violated upstream, and is
// returned as-is rather than papered over).
//
// From ErrorFixing: a completion signal is FixApplied. A non-completion
// stop means the fix attempt itself failed to land; the retry ceiling is
// checked directly rather than through a transition, because ErrorFixing
// has no guarded "try again in place" edge — only MaxRetriesExceeded
// (terminal) or FixApplied (success) are defined from it. Still under
// the ceiling, the card stays in ErrorFixing for the supervisor to retry.
func (e *Engine) applyLoopOutcome(ctx context.Context, cardID string, completed bool) error {
	c, err := e.repo.GetCard(ctx, cardID)
	if err != nil {
		return err
	}

	if c.State == card.StateErrorFixing {
		if completed {
			return e.ApplyTrigger(ctx, cardID, card.TriggerFixApplied)
		}
		if c.UnderRetryLimit() {
			return nil
		}
		return e.ApplyTrigger(ctx, cardID, card.TriggerMaxRetriesExceeded)
	}

	if completed {
		return e.ApplyTrigger(ctx, cardID, card.TriggerLoopComplete)
	}
	return e.ApplyTrigger(ctx, cardID, card.TriggerErrorDetected)
}
