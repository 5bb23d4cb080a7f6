package loopsupervisor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
)

// runLoop drives one card's loop through the iteration protocol of
// spec.md §4.3 until it reaches a stop condition, then runs the completion
// path. It is started as its own goroutine by StartLoop and exits when the
// loop is removed, stopped, or its context is cancelled.
func (s *Supervisor) runLoop(ctx context.Context, cardID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		status, st, ok := s.snapshot(cardID)
		if !ok {
			return
		}

		// Step 1: paused loops poll without consuming iteration budget;
		// stopped loops go straight to completion.
		if status == loopcfg.StatusPaused {
			select {
			case <-time.After(pausePollInterval):
				continue
			case <-ctx.Done():
				return
			}
		}
		if status == loopcfg.StatusStopped {
			s.finish(ctx, cardID, loopcfg.StopReason{Kind: loopcfg.StopUserStopped})
			return
		}

		// Step 2: budget evaluation.
		if reason := st.ShouldStop(); reason != nil {
			s.finish(ctx, cardID, *reason)
			return
		}

		// Step 3: run one agent iteration via C5/C6.
		result, err := s.agent.RunIteration(ctx, cardID, *st)
		if err != nil {
			s.log.WithCard(cardID).WithError(err).Warn("agent iteration failed")
			newState, recErr := s.RecordIteration(cardID, 0, 0, true)
			if recErr != nil {
				return
			}
			// Step 7: cancellable cooldown, same as a successful iteration —
			// a failing adapter must still back off instead of busy-looping.
			select {
			case <-time.After(time.Duration(newState.BackoffSeconds()) * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		// Step 4: record the observed deltas and publish LoopIteration.
		newState, err := s.RecordIteration(cardID, result.Tokens, result.CostUSD, result.HadError)
		if err != nil {
			return
		}
		if s.events != nil {
			s.events.Publish(event.NewLoopIteration(cardID, newState.Iteration, newState.TotalTokens, newState.TotalCostUSD))
		}

		// Step 5: completion sentinel.
		if newState.Config.CompletionSignal != "" && strings.Contains(result.Output, newState.Config.CompletionSignal) {
			s.finish(ctx, cardID, loopcfg.StopReason{Kind: loopcfg.StopCompletionSignal})
			return
		}

		// Step 6: checkpoint boundary.
		if newState.ShouldCheckpoint() {
			s.checkpoint(ctx, cardID, newState)
		}

		// Step 7: cancellable cooldown.
		select {
		case <-time.After(time.Duration(newState.BackoffSeconds()) * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) checkpoint(ctx context.Context, cardID string, st *loopcfg.State) {
	if s.checkpoints == nil {
		return
	}
	stateJSON, err := json.Marshal(st)
	if err != nil {
		s.log.WithCard(cardID).WithError(err).Error("marshaling checkpoint state failed")
		return
	}
	cp := loopcfg.Checkpoint{
		CardID:       cardID,
		Iteration:    st.Iteration,
		StateJSON:    string(stateJSON),
		TotalCostUSD: st.TotalCostUSD,
		TotalTokens:  st.TotalTokens,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.log.WithCard(cardID).WithError(err).Error("checkpoint save failed")
		return
	}
	if _, err := s.RecordCheckpoint(cardID); err != nil {
		s.log.WithCard(cardID).WithError(err).Error("recording checkpoint marker failed")
	}
}

// finish runs the completion path: apply the reason-to-trigger mapping
// against the card's state machine, publish LoopCompleted, set the terminal
// supervisor status, and — on successful completion — delete the card's
// checkpoints, per spec.md §4.3.
func (s *Supervisor) finish(ctx context.Context, cardID string, reason loopcfg.StopReason) {
	_, st, ok := s.snapshot(cardID)
	if !ok {
		return
	}

	if s.cards != nil {
		if err := s.cards.ApplyStopReason(ctx, cardID, reason); err != nil {
			s.log.WithCard(cardID).WithError(err).Error("applying loop stop reason to card state failed")
		}
	}

	var final *loopcfg.State
	var err error
	if reason.Kind == loopcfg.StopUserStopped {
		// StopLoop already left the loop Stopped with a UserStopped reason.
		final = st
	} else if reason.Kind == loopcfg.StopCompletionSignal {
		final, err = s.CompleteLoop(cardID, reason)
	} else if reason.Kind == loopcfg.StopError || reason.Kind == loopcfg.StopCircuitBreaker {
		final, err = s.FailLoop(cardID, errorFromReason(reason))
	} else {
		final, err = s.CompleteLoop(cardID, reason)
	}
	if err != nil {
		return
	}

	if s.events != nil {
		s.events.Publish(event.NewLoopCompleted(cardID, resultFromReason(reason.Kind), final.Iteration, final.TotalCostUSD, final.TotalTokens))
	}

	if reason.Kind == loopcfg.StopCompletionSignal && s.checkpoints != nil {
		if err := s.checkpoints.DeleteAll(ctx, cardID); err != nil {
			s.log.WithCard(cardID).WithError(err).Error("deleting completed card's checkpoints failed")
		}
	}

	_ = st
}

func errorFromReason(r loopcfg.StopReason) error {
	if r.Message == "" {
		return nil
	}
	return stopReasonError{r}
}

type stopReasonError struct{ r loopcfg.StopReason }

func (e stopReasonError) Error() string { return e.r.Message }

func resultFromReason(k loopcfg.StopReasonKind) event.LoopCompletionResult {
	switch k {
	case loopcfg.StopCompletionSignal:
		return event.ResultCompletionSignal
	case loopcfg.StopMaxIterations:
		return event.ResultMaxIterations
	case loopcfg.StopCostLimit:
		return event.ResultCostLimit
	case loopcfg.StopTimeLimit:
		return event.ResultTimeLimit
	case loopcfg.StopUserStopped:
		return event.ResultUserStopped
	case loopcfg.StopCircuitBreaker:
		return event.ResultCircuitBreaker
	default:
		return event.ResultError
	}
}
