package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge/domain/card"
)

type fakeCardSource struct {
	byState map[card.State][]card.WithFlags
}

func (f *fakeCardSource) CardsInStates(ctx context.Context, states []card.State) ([]card.WithFlags, error) {
	var out []card.WithFlags
	for _, st := range states {
		out = append(out, f.byState[st]...)
	}
	return out, nil
}

type fakeRunner struct {
	calls []card.Action
}

func (f *fakeRunner) Execute(ctx context.Context, c *card.WithFlags, actions []card.Action) error {
	f.calls = append(f.calls, actions...)
	return nil
}

func TestPollBuildsRunsMonitorBuildForEachBuildingCard(t *testing.T) {
	source := &fakeCardSource{byState: map[card.State][]card.WithFlags{
		card.StateBuilding: {
			{Card: card.Card{ID: "card-1"}},
			{Card: card.Card{ID: "card-2"}},
		},
	}}
	runner := &fakeRunner{}
	s := New(source, runner, nil, nil)

	s.pollBuilds(context.Background())

	assert.Equal(t, []card.Action{card.ActionMonitorBuild, card.ActionMonitorBuild}, runner.calls)
}

func TestPollDeploysRunsMonitorArgoCDForEachDeployingCard(t *testing.T) {
	source := &fakeCardSource{byState: map[card.State][]card.WithFlags{
		card.StateDeploying: {{Card: card.Card{ID: "card-3"}}},
	}}
	runner := &fakeRunner{}
	s := New(source, runner, nil, nil)

	s.pollDeploys(context.Background())

	assert.Equal(t, []card.Action{card.ActionMonitorArgoCD}, runner.calls)
}

type fakeCheckpointPruner struct{ deleted []string }

func (f *fakeCheckpointPruner) DeleteAll(ctx context.Context, cardID string) error {
	f.deleted = append(f.deleted, cardID)
	return nil
}

type fakeMetricsForgetter struct{ forgotten []string }

func (f *fakeMetricsForgetter) Forget(cardID string) { f.forgotten = append(f.forgotten, cardID) }

func TestDefaultHousekeeperSweepsArchivedCards(t *testing.T) {
	source := &fakeCardSource{byState: map[card.State][]card.WithFlags{
		card.StateArchived: {{Card: card.Card{ID: "card-4"}}},
	}}
	checkpoints := &fakeCheckpointPruner{}
	metrics := &fakeMetricsForgetter{}
	h := NewDefaultHousekeeper(source, checkpoints, metrics)

	err := h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"card-4"}, checkpoints.deleted)
	assert.Equal(t, []string{"card-4"}, metrics.forgotten)
}

func TestStartRejectsInvalidCronExpression(t *testing.T) {
	s := New(&fakeCardSource{}, &fakeRunner{}, nil, nil)
	err := s.Start(context.Background(), Schedule{BuildPoll: "not a cron expr !!"})
	require.Error(t, err)
}
