package rediscache

import (
	"context"
	"testing"

	"github.com/cardforge/cardforge/checkpoint/memory"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Without a Redis client, Store degrades transparently to the underlying
// store (Redis is optional, per config.Config.Redis.Enabled).
func TestDegradesToUnderlyingStoreWithoutRedis(t *testing.T) {
	underlying := memory.New()
	s := New(underlying, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, loopcfg.Checkpoint{CardID: "card-1", Iteration: 1, StateJSON: "{}"}))

	latest, err := s.Latest(ctx, "card-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int32(1), latest.Iteration)

	has, err := s.HasResumable(ctx, "card-1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.DeleteAll(ctx, "card-1"))
	has, err = s.HasResumable(ctx, "card-1")
	require.NoError(t, err)
	assert.False(t, has)
}
