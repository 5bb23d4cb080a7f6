package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIterationAccumulatesPerCard(t *testing.T) {
	r := NewRecorder()

	r.RecordIteration("card-1", "claude-code", 100, 0.5, 2*time.Second)
	r.RecordIteration("card-1", "claude-code", 50, 0.25, time.Second)

	snap, ok := r.Snapshot("card-1")
	require.True(t, ok)
	assert.Equal(t, int64(150), snap.TotalTokens)
	assert.InDelta(t, 0.75, snap.TotalCostUSD, 0.0001)
	assert.Equal(t, 3*time.Second, snap.TotalDuration)
	assert.Equal(t, 2, snap.Iterations)
}

func TestSnapshotMissingCardReturnsFalse(t *testing.T) {
	r := NewRecorder()
	_, ok := r.Snapshot("nope")
	assert.False(t, ok)
}

func TestForgetDropsSnapshot(t *testing.T) {
	r := NewRecorder()
	r.RecordIteration("card-1", "claude-code", 10, 0.1, time.Second)
	r.Forget("card-1")
	_, ok := r.Snapshot("card-1")
	assert.False(t, ok)
}

func TestRecordForCardDoesNotPanicWithoutPriorIteration(t *testing.T) {
	r := NewRecorder()
	r.RecordForCard("unknown-card")
}
