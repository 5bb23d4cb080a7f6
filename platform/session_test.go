package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandle() *Handle {
	return &Handle{ID: "h1", CardID: "card-1", Platform: "test", StartedAt: time.Now().UTC()}
}

func TestSessionStartAndNaturalExit(t *testing.T) {
	h := newTestHandle()
	s := NewSession(h, "<done>", nil)

	line := `{"type":"result","duration_ms":10,"cost_usd":0.01,"session_id":"s1"}`
	err := s.Start(context.Background(), "sh", []string{"-c", "printf '%s\\n' '" + line + "'"}, ".", nil)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not exit in time")
	}

	assert.False(t, s.IsRunning())
	result := s.Result("process_exited")
	assert.InDelta(t, 0.01, result.TotalCostUSD, 0.0001)
}

func TestSessionKillOnLongRunningProcess(t *testing.T) {
	h := newTestHandle()
	s := NewSession(h, "<done>", nil)

	err := s.Start(context.Background(), "sh", []string{"-c", "sleep 30"}, ".", nil)
	require.NoError(t, err)
	assert.True(t, s.IsRunning())

	s.Kill(2 * time.Second)
	assert.False(t, s.IsRunning())
}

func TestSessionResultReflectsCompletionSignal(t *testing.T) {
	h := newTestHandle()
	s := NewSession(h, "<done>COMPLETE</done>", nil)

	line := `{"type":"assistant","message":{"role":"assistant","content":"all done <done>COMPLETE</done>"}}`
	err := s.Start(context.Background(), "sh", []string{"-c", "printf '%s\\n' '" + line + "'"}, ".", nil)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not exit in time")
	}

	result := s.Result("process_exited")
	assert.Equal(t, "completed", result.EndReason)
}
