package statemachine

import (
	"time"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/internal/apperr"
)

// CanTransition reports whether trigger is accepted from the card's current
// state, distinguishing an undefined (from, trigger) pair from one whose
// guard fails.
func CanTransition(c *card.WithFlags, trigger card.Trigger) error {
	def, ok := table[transitionKey{c.State, trigger}]
	if !ok {
		return apperr.Newf(apperr.CodeInvalidTransition,
			"no transition defined for state %q on trigger %q", c.State, trigger).
			WithDetails("state", string(c.State)).
			WithDetails("trigger", string(trigger))
	}
	if !evalGuard(def.guard, c) {
		return apperr.Newf(apperr.CodeGuardFailed,
			"guard %q failed for state %q on trigger %q", def.guard, c.State, trigger).
			WithDetails("state", string(c.State)).
			WithDetails("trigger", string(trigger)).
			WithDetails("guard", string(def.guard))
	}
	return nil
}

// Transition applies trigger against c: on success it atomically sets
// previous_state, state, and state_changed_at and returns the action list to
// execute. No persistence happens here — the caller records the transition
// and persists the card, per spec.md §4.2.
func Transition(c *card.WithFlags, trigger card.Trigger) ([]card.Action, error) {
	if err := CanTransition(c, trigger); err != nil {
		return nil, err
	}
	def := table[transitionKey{c.State, trigger}]
	c.Card.SetTransition(def.to, time.Now().UTC())
	return def.actions, nil
}

// ValidTriggers enumerates triggers whose (from, trigger) key exists for
// c's current state and whose guard (if any) evaluates true against c.
func ValidTriggers(c *card.WithFlags) []card.Trigger {
	var triggers []card.Trigger
	for key, def := range table {
		if key.from != c.State {
			continue
		}
		if !evalGuard(def.guard, c) {
			continue
		}
		triggers = append(triggers, key.trigger)
	}
	return triggers
}
