package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
)

type fakeRepo struct {
	cards    map[string]*card.WithFlags
	stateLog []string
}

func (f *fakeRepo) GetCard(ctx context.Context, id string) (*card.WithFlags, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) UpdateCardState(ctx context.Context, cardID string, from, to card.State, trigger card.Trigger) error {
	f.stateLog = append(f.stateLog, string(from)+"->"+string(to)+"@"+string(trigger))
	f.cards[cardID].Card.SetTransition(to, f.cards[cardID].StateChangedAt)
	return nil
}

type fakeRunner struct{ ran []card.Action }

func (f *fakeRunner) Execute(ctx context.Context, c *card.WithFlags, actions []card.Action) error {
	f.ran = append(f.ran, actions...)
	return nil
}

type fakeEvents struct{ events []event.Event }

func (f *fakeEvents) Publish(e event.Event) { f.events = append(f.events, e) }

func newTestEngine(c *card.WithFlags) (*Engine, *fakeRepo, *fakeRunner, *fakeEvents) {
	repo := &fakeRepo{cards: map[string]*card.WithFlags{c.ID: c}}
	runner := &fakeRunner{}
	events := &fakeEvents{}
	return New(repo, runner, events, nil), repo, runner, events
}

func TestApplyTriggerPersistsAndPublishesStateChanged(t *testing.T) {
	c := &card.WithFlags{Card: card.Card{ID: "card-1", State: card.StateDraft}}
	e, repo, _, events := newTestEngine(c)

	err := e.ApplyTrigger(context.Background(), "card-1", card.TriggerStartPlanning)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft->planning@start_planning"}, repo.stateLog)
	require.Len(t, events.events, 1)
	assert.Equal(t, event.TypeStateChanged, events.events[0].Type)
}

func TestApplyTriggerRunsResultingActions(t *testing.T) {
	c := &card.WithFlags{
		Card:  card.Card{ID: "card-1", State: card.StatePlanning},
		Flags: card.Flags{HasAcceptanceCriteria: true},
	}
	e, _, runner, _ := newTestEngine(c)

	err := e.ApplyTrigger(context.Background(), "card-1", card.TriggerApprovePlan)
	require.NoError(t, err)
	assert.Equal(t, []card.Action{card.ActionCreateGitWorktree, card.ActionStartLoop}, runner.ran)
}

func TestApplyStopReasonCompletionSignalMapsToLoopComplete(t *testing.T) {
	c := &card.WithFlags{
		Card:  card.Card{ID: "card-1", State: card.StateCoding},
		Flags: card.Flags{HasGeneratedCode: true},
	}
	e, repo, _, _ := newTestEngine(c)

	err := e.ApplyStopReason(context.Background(), "card-1", loopcfg.StopReason{Kind: loopcfg.StopCompletionSignal})
	require.NoError(t, err)
	assert.Equal(t, []string{"coding->code_review@loop_complete"}, repo.stateLog)
}

func TestApplyStopReasonUserStoppedIsNoOp(t *testing.T) {
	c := &card.WithFlags{Card: card.Card{ID: "card-1", State: card.StateCoding}}
	e, repo, _, events := newTestEngine(c)

	err := e.ApplyStopReason(context.Background(), "card-1", loopcfg.StopReason{Kind: loopcfg.StopUserStopped})
	require.NoError(t, err)
	assert.Empty(t, repo.stateLog)
	assert.Empty(t, events.events)
}

func TestApplyStopReasonErrorFallsBackToMaxRetriesExceededWhenRetriesExhausted(t *testing.T) {
	c := &card.WithFlags{
		Card: card.Card{ID: "card-1", State: card.StateErrorFixing, ErrorCount: 3, RetryCeiling: 3},
	}
	e, repo, _, _ := newTestEngine(c)

	err := e.ApplyStopReason(context.Background(), "card-1", loopcfg.StopReason{Kind: loopcfg.StopError})
	require.NoError(t, err)
	require.Len(t, repo.stateLog, 1)
	assert.Contains(t, repo.stateLog[0], "@max_retries_exceeded")
}

func TestApplyStopReasonErrorStaysInErrorFixingWhenUnderRetryLimit(t *testing.T) {
	c := &card.WithFlags{
		Card: card.Card{ID: "card-1", State: card.StateErrorFixing, ErrorCount: 1, RetryCeiling: 3},
	}
	e, repo, _, events := newTestEngine(c)

	err := e.ApplyStopReason(context.Background(), "card-1", loopcfg.StopReason{Kind: loopcfg.StopError})
	require.NoError(t, err)
	assert.Empty(t, repo.stateLog)
	assert.Empty(t, events.events)
}

func TestApplyStopReasonCompletionSignalFromErrorFixingMapsToFixApplied(t *testing.T) {
	c := &card.WithFlags{Card: card.Card{ID: "card-1", State: card.StateErrorFixing}}
	e, repo, runner, _ := newTestEngine(c)

	err := e.ApplyStopReason(context.Background(), "card-1", loopcfg.StopReason{Kind: loopcfg.StopCompletionSignal})
	require.NoError(t, err)
	assert.Equal(t, []string{"error_fixing->coding@fix_applied"}, repo.stateLog)
	assert.Equal(t, []card.Action{card.ActionRestartLoopWithError}, runner.ran)
}
