package loopcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSecondsCapsAtMax(t *testing.T) {
	s := New("card-1", Config{CooldownSeconds: 3})
	s.ConsecutiveErrors = 10
	assert.Equal(t, uint64(maxBackoffSeconds), s.BackoffSeconds())
}

func TestBackoffSecondsGrowsExponentially(t *testing.T) {
	s := New("card-1", Config{CooldownSeconds: 3})
	s.ConsecutiveErrors = 0
	assert.Equal(t, uint64(3), s.BackoffSeconds())
	s.ConsecutiveErrors = 1
	assert.Equal(t, uint64(6), s.BackoffSeconds())
	s.ConsecutiveErrors = 2
	assert.Equal(t, uint64(12), s.BackoffSeconds())
}

func TestShouldStopPrecedence(t *testing.T) {
	cfg := Config{MaxIterations: 10, MaxCostUSD: 100, MaxRuntimeSeconds: 1000, MaxConsecutiveErrors: 3}

	s := New("card-1", cfg)
	s.Iteration = 10
	s.TotalCostUSD = 200
	reason := s.ShouldStop()
	require.NotNil(t, reason)
	assert.Equal(t, StopMaxIterations, reason.Kind)

	s = New("card-1", cfg)
	s.TotalCostUSD = 200
	s.ElapsedSeconds = 2000
	reason = s.ShouldStop()
	require.NotNil(t, reason)
	assert.Equal(t, StopCostLimit, reason.Kind)

	s = New("card-1", cfg)
	s.ElapsedSeconds = 2000
	s.ConsecutiveErrors = 5
	reason = s.ShouldStop()
	require.NotNil(t, reason)
	assert.Equal(t, StopTimeLimit, reason.Kind)

	s = New("card-1", cfg)
	s.ConsecutiveErrors = 5
	reason = s.ShouldStop()
	require.NotNil(t, reason)
	assert.Equal(t, StopCircuitBreaker, reason.Kind)

	s = New("card-1", cfg)
	assert.Nil(t, s.ShouldStop())
}

func TestShouldCheckpoint(t *testing.T) {
	s := New("card-1", Config{CheckpointInterval: 5})

	s.Iteration = 0
	assert.False(t, s.ShouldCheckpoint())
	s.Iteration = 5
	assert.True(t, s.ShouldCheckpoint())
	s.Iteration = 6
	assert.False(t, s.ShouldCheckpoint())

	s.Config.CheckpointInterval = 0
	s.Iteration = 5
	assert.False(t, s.ShouldCheckpoint())
}

func TestRestoreStateRoundTrips(t *testing.T) {
	s := New("card-1", DefaultConfig())
	s.Iteration = 3
	s.TotalTokens = 42

	cp := Checkpoint{ID: "cp-1", CardID: "card-1", StateJSON: `{"cardId":"card-1","iteration":3,"totalTokens":42,"status":"running","startTime":"2026-01-01T00:00:00Z","config":{}}`}
	restored, err := cp.RestoreState()
	require.NoError(t, err)
	assert.Equal(t, int32(3), restored.Iteration)
	assert.Equal(t, int64(42), restored.TotalTokens)
}

func TestRestoreStateSurfacesCorruption(t *testing.T) {
	cp := Checkpoint{ID: "cp-1", CardID: "card-1", StateJSON: "not json"}
	_, err := cp.RestoreState()
	assert.Error(t, err)
}
