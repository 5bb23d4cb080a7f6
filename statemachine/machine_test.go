package statemachine

import (
	"testing"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCard(state card.State) *card.WithFlags {
	return &card.WithFlags{Card: card.Card{State: state, RetryCeiling: 3}}
}

func TestDraftCanStartPlanning(t *testing.T) {
	c := newCard(card.StateDraft)
	assert.NoError(t, CanTransition(c, card.TriggerStartPlanning))
}

func TestUndefinedTriggerIsInvalidTransition(t *testing.T) {
	c := newCard(card.StateDraft)
	err := CanTransition(c, card.TriggerApprovePlan)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}

func TestApprovePlanRequiresAcceptanceCriteria(t *testing.T) {
	c := newCard(card.StatePlanning)
	err := CanTransition(c, card.TriggerApprovePlan)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeGuardFailed))

	c.HasAcceptanceCriteria = true
	assert.NoError(t, CanTransition(c, card.TriggerApprovePlan))
}

func TestTransitionSetsStateAndPreviousStateTogether(t *testing.T) {
	c := newCard(card.StatePlanning)
	c.HasAcceptanceCriteria = true

	before := c.StateChangedAt
	actions, err := Transition(c, card.TriggerApprovePlan)
	require.NoError(t, err)

	assert.Equal(t, card.StateCoding, c.State)
	assert.Equal(t, card.StatePlanning, c.PreviousState)
	assert.True(t, c.StateChangedAt.After(before))
	assert.ElementsMatch(t, []card.Action{card.ActionCreateGitWorktree, card.ActionStartLoop}, actions)
}

func TestTransitionDoesNotMutateOnFailure(t *testing.T) {
	c := newCard(card.StatePlanning)
	before := *c

	_, err := Transition(c, card.TriggerApprovePlan)
	require.Error(t, err)
	assert.Equal(t, before, *c)
}

func TestCodingCanCompleteOrFail(t *testing.T) {
	c := newCard(card.StateCoding)
	triggers := ValidTriggers(c)

	var hasErrorDetected bool
	for _, tr := range triggers {
		if tr == card.TriggerErrorDetected {
			hasErrorDetected = true
		}
	}
	assert.True(t, hasErrorDetected)

	c.HasGeneratedCode = true
	triggers = ValidTriggers(c)
	var hasLoopComplete bool
	for _, tr := range triggers {
		if tr == card.TriggerLoopComplete {
			hasLoopComplete = true
		}
	}
	assert.True(t, hasLoopComplete)
}

func TestUnderRetryLimitGuardsErrorFixingEdges(t *testing.T) {
	c := newCard(card.StateCoding)
	c.ErrorCount = 3
	c.RetryCeiling = 3

	err := CanTransition(c, card.TriggerErrorDetected)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeGuardFailed))
}

func TestSupplementedRejectEdges(t *testing.T) {
	planning := newCard(card.StatePlanning)
	actions, err := Transition(planning, card.TriggerRejectPlan)
	require.NoError(t, err)
	assert.Equal(t, card.StateDraft, planning.State)
	assert.Empty(t, actions)

	review := newCard(card.StateCodeReview)
	actions, err = Transition(review, card.TriggerRejectReview)
	require.NoError(t, err)
	assert.Equal(t, card.StateCoding, review.State)
	assert.Equal(t, []card.Action{card.ActionStartLoop}, actions)

	testing_ := newCard(card.StateTesting)
	_, err = Transition(testing_, card.TriggerTestsFailed)
	require.NoError(t, err)
	assert.Equal(t, card.StateErrorFixing, testing_.State)
}

func TestArchiveFromBothTerminalStates(t *testing.T) {
	completed := newCard(card.StateCompleted)
	_, err := Transition(completed, card.TriggerArchive)
	require.NoError(t, err)
	assert.Equal(t, card.StateArchived, completed.State)

	failed := newCard(card.StateFailed)
	_, err = Transition(failed, card.TriggerArchive)
	require.NoError(t, err)
	assert.Equal(t, card.StateArchived, failed.State)
}
