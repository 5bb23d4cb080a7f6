package memory

import (
	"context"
	"testing"

	"github.com/cardforge/cardforge/checkpoint"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLatest(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, loopcfg.Checkpoint{CardID: "card-1", Iteration: 1, StateJSON: "{}"}))
	require.NoError(t, s.Save(ctx, loopcfg.Checkpoint{CardID: "card-1", Iteration: 2, StateJSON: "{}"}))

	latest, err := s.Latest(ctx, "card-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int32(2), latest.Iteration)
}

func TestLatestWithNoCheckpointsReturnsNil(t *testing.T) {
	s := New()
	latest, err := s.Latest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSaveRetainsOnlyMaxCheckpointsPerCard(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := int32(1); i <= int32(checkpoint.MaxCheckpointsPerCard)+2; i++ {
		require.NoError(t, s.Save(ctx, loopcfg.Checkpoint{CardID: "card-1", Iteration: i, StateJSON: "{}"}))
	}

	all, err := s.List(ctx, "card-1")
	require.NoError(t, err)
	assert.Len(t, all, checkpoint.MaxCheckpointsPerCard)
	// Ordered by iteration desc; the oldest two should have been pruned.
	assert.Equal(t, int32(checkpoint.MaxCheckpointsPerCard)+2, all[0].Iteration)
}

func TestDeleteAllAndHasResumable(t *testing.T) {
	s := New()
	ctx := context.Background()

	has, err := s.HasResumable(ctx, "card-1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.Save(ctx, loopcfg.Checkpoint{CardID: "card-1", Iteration: 1, StateJSON: "{}"}))
	has, err = s.HasResumable(ctx, "card-1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.DeleteAll(ctx, "card-1"))
	has, err = s.HasResumable(ctx, "card-1")
	require.NoError(t, err)
	assert.False(t, has)
}
