package platform

import (
	"context"
	"sync"
	"time"

	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/internal/obslog"
)

// pollInterval is how often RunIteration checks a live session for
// completion while waiting for its turn to finish.
const pollInterval = 500 * time.Millisecond

// registration is what the Action Executor's StartLoop handler records
// before the Loop Supervisor's driver goroutine starts calling
// RunIteration for a card — the worktree, the first-turn prompt, and
// session overrides (spec.md §4.7 CreateGitWorktree/StartLoop).
type registration struct {
	WorktreePath string
	Prompt       string
	Config       SessionConfig
}

// LoopAgent adapts one platform.Adapter into the narrow
// loopsupervisor.AgentSession interface (RunIteration(ctx, cardID, loop) ->
// IterationResult), so C3 never depends on C5's richer start/stop/status
// lifecycle contract directly. One RunIteration call corresponds to one
// full agent turn: spawn the CLI with the card's prompt, wait for it to
// exit, collect its Result, and report that as the iteration's delta —
// matching spec.md §4.3 step 3 ("begin one agent session via C5/C6").
type LoopAgent struct {
	adapter Adapter
	log     *obslog.Logger

	mu       sync.Mutex
	regs     map[string]registration
	sessions map[string]*Handle
}

// NewLoopAgent wires adapter behind the loopsupervisor.AgentSession seam.
func NewLoopAgent(adapter Adapter, log *obslog.Logger) *LoopAgent {
	if log == nil {
		log = obslog.Noop()
	}
	return &LoopAgent{
		adapter:  adapter,
		log:      log,
		regs:     make(map[string]registration),
		sessions: make(map[string]*Handle),
	}
}

// Register records the worktree/prompt/config a card's loop should use for
// its next agent turn. Called by the Action Executor's StartLoop handler
// before it invokes loopsupervisor.StartLoop, and again after an iteration
// if the next turn's prompt needs to change (e.g. to feed back a tool
// failure).
func (a *LoopAgent) Register(cardID, worktreePath, prompt string, cfg SessionConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.regs[cardID] = registration{WorktreePath: worktreePath, Prompt: prompt, Config: cfg}
}

// Forget drops a card's registration and stops any live session. The
// Loop Supervisor does not call it when a loop ends; a registration stays
// until Forget removes it or a later Register replaces it.
func (a *LoopAgent) Forget(ctx context.Context, cardID string) {
	a.mu.Lock()
	h, ok := a.sessions[cardID]
	delete(a.regs, cardID)
	delete(a.sessions, cardID)
	a.mu.Unlock()

	if ok {
		_, _ = a.adapter.StopSession(ctx, h)
	}
}

// RunIteration implements loopsupervisor.AgentSession.
func (a *LoopAgent) RunIteration(ctx context.Context, cardID string, loop loopcfg.State) (IterationResult, error) {
	reg, ok := a.reg(cardID)
	if !ok {
		return IterationResult{}, apperr.Newf(apperr.CodeLoopNotFound, "no registered agent session for card %s", cardID)
	}
	if reg.Config.CompletionSignal == "" {
		reg.Config.CompletionSignal = loop.Config.CompletionSignal
	}

	h, err := a.adapter.StartSession(ctx, cardID, reg.WorktreePath, reg.Prompt, reg.Config)
	if err != nil {
		return IterationResult{HadError: true}, err
	}
	a.mu.Lock()
	a.sessions[cardID] = h
	a.mu.Unlock()

	waitCtx := ctx
	if reg.Config.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, reg.Config.Timeout)
		defer cancel()
	}

	a.waitForExit(waitCtx, h)

	result, err := a.adapter.StopSession(ctx, h)
	a.mu.Lock()
	delete(a.sessions, cardID)
	a.mu.Unlock()
	if err != nil {
		return IterationResult{HadError: true}, err
	}

	return IterationResult{
		Tokens:   result.TotalTokens,
		CostUSD:  result.TotalCostUSD,
		HadError: result.EndReason == "error",
		Output:   result.Output,
	}, nil
}

// waitForExit blocks until h's process exits or ctx is done, whichever
// comes first.
func (a *LoopAgent) waitForExit(ctx context.Context, h *Handle) {
	for a.adapter.IsSessionRunning(h) {
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (a *LoopAgent) reg(cardID string) (registration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.regs[cardID]
	return r, ok
}
