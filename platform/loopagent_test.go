package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge/domain/loopcfg"
)

// fakeAdapter is a minimal platform.Adapter double: every session it starts
// is immediately "finished" so RunIteration's wait loop returns instantly.
type fakeAdapter struct {
	started  []string
	running  map[string]bool
	result   *Result
	startErr error
	stopped  int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{running: make(map[string]bool)}
}

func (f *fakeAdapter) Name() string                           { return "fake" }
func (f *fakeAdapter) IsAvailable(ctx context.Context) bool    { return true }
func (f *fakeAdapter) StartSession(ctx context.Context, cardID, worktreePath, prompt string, cfg SessionConfig) (*Handle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, prompt)
	h := &Handle{ID: cardID, CardID: cardID, StartedAt: time.Now().UTC()}
	f.running[cardID] = false
	return h, nil
}
func (f *fakeAdapter) StopSession(ctx context.Context, h *Handle) (*Result, error) {
	f.stopped++
	if f.result != nil {
		return f.result, nil
	}
	return &Result{EndReason: "process_exited", TotalTokens: 42, TotalCostUSD: 0.5, Output: "done"}, nil
}
func (f *fakeAdapter) IsSessionRunning(h *Handle) bool { return f.running[h.CardID] }
func (f *fakeAdapter) GetSessionStatus(h *Handle) (*Status, error) {
	return &Status{State: StateCompleted}, nil
}

var _ Adapter = (*fakeAdapter)(nil)

func TestLoopAgentRequiresRegistration(t *testing.T) {
	agent := NewLoopAgent(newFakeAdapter(), nil)
	_, err := agent.RunIteration(context.Background(), "card-1", loopcfg.State{})
	assert.Error(t, err)
}

func TestLoopAgentRunIterationReportsDeltas(t *testing.T) {
	fa := newFakeAdapter()
	agent := NewLoopAgent(fa, nil)
	agent.Register("card-1", "/tmp/wt", "do the thing", SessionConfig{})

	result, err := agent.RunIteration(context.Background(), "card-1", loopcfg.State{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Tokens)
	assert.InDelta(t, 0.5, result.CostUSD, 0.0001)
	assert.Equal(t, "done", result.Output)
	assert.False(t, result.HadError)
	assert.Equal(t, []string{"do the thing"}, fa.started)
}

func TestLoopAgentForgetStopsLiveSession(t *testing.T) {
	fa := newFakeAdapter()
	agent := NewLoopAgent(fa, nil)
	agent.Register("card-1", "/tmp/wt", "prompt", SessionConfig{})
	fa.running["card-1"] = true
	agent.sessions["card-1"] = &Handle{ID: "card-1", CardID: "card-1"}

	agent.Forget(context.Background(), "card-1")

	_, ok := agent.reg("card-1")
	assert.False(t, ok)
	assert.Equal(t, 1, fa.stopped)
}
