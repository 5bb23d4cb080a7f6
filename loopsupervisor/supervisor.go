// Package loopsupervisor implements the Loop Supervisor (C3): it owns the
// set of in-flight coding loops, enforces budgets, drives iterations,
// triggers checkpoints, and emits lifecycle events. Grounded on the
// teacher's services/automation.Scheduler (a sync.RWMutex-guarded map plus
// a background goroutine per managed resource, started with `go s.run(...)`
// and stopped via a cancellable context) and on the loop semantics in
// original_source/src/loops/mod.rs, whose pure budget/backoff math lives in
// domain/loopcfg so this package stays a thin concurrency-and-orchestration
// shell around it.
package loopsupervisor

import (
	"context"
	"sync"
	"time"

	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/internal/obslog"
)

// pausePollInterval is how often a paused loop's goroutine wakes up to
// check whether it has been resumed or stopped.
const pausePollInterval = 500 * time.Millisecond

// AgentSession runs one coding-agent iteration for a card (C5/C6's public
// face to the supervisor).
type AgentSession interface {
	RunIteration(ctx context.Context, cardID string, loop loopcfg.State) (IterationResult, error)
}

// IterationResult is the observed delta and raw output of one agent
// iteration, reported back to the supervisor for budget accounting and
// completion-sentinel scanning.
type IterationResult struct {
	Tokens   int64
	CostUSD  float64
	HadError bool
	Output   string
}

// CheckpointStore is C4's public face to the supervisor.
type CheckpointStore interface {
	Save(ctx context.Context, cp loopcfg.Checkpoint) error
	Latest(ctx context.Context, cardID string) (*loopcfg.Checkpoint, error)
	DeleteAll(ctx context.Context, cardID string) error
}

// EventPublisher is the Event Bus's (C1) public face to the supervisor.
type EventPublisher interface {
	Publish(e event.Event)
}

// CardTransitioner applies the loop-completion-to-state-machine-trigger
// mapping described in spec.md §4.3's completion path. It is the
// supervisor's only dependency on C2/C7; the supervisor never touches the
// transition table directly.
type CardTransitioner interface {
	ApplyStopReason(ctx context.Context, cardID string, reason loopcfg.StopReason) error
}

type entry struct {
	state  *loopcfg.State
	cancel context.CancelFunc
}

// Supervisor owns every in-flight loop behind a single RWMutex, per
// spec.md §4.3.
type Supervisor struct {
	mu    sync.RWMutex
	loops map[string]*entry

	agent       AgentSession
	checkpoints CheckpointStore
	events      EventPublisher
	cards       CardTransitioner
	log         *obslog.Logger
}

// New constructs a Supervisor wired to its collaborators.
func New(agent AgentSession, checkpoints CheckpointStore, events EventPublisher, cards CardTransitioner, log *obslog.Logger) *Supervisor {
	if log == nil {
		log = obslog.Noop()
	}
	return &Supervisor{
		loops:       make(map[string]*entry),
		agent:       agent,
		checkpoints: checkpoints,
		events:      events,
		cards:       cards,
		log:         log,
	}
}

func cloneState(s *loopcfg.State) *loopcfg.State {
	cp := *s
	return &cp
}

// HasLoop reports whether cardID has an in-memory loop entry.
func (s *Supervisor) HasLoop(cardID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loops[cardID]
	return ok
}

// ActiveLoopCount returns the number of loops currently tracked (including
// paused ones, but not ones already removed after completion).
func (s *Supervisor) ActiveLoopCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loops)
}

// ListActiveLoops returns a snapshot of every tracked loop's state.
func (s *Supervisor) ListActiveLoops() []*loopcfg.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*loopcfg.State, 0, len(s.loops))
	for _, e := range s.loops {
		out = append(out, cloneState(e.state))
	}
	return out
}

// StartLoop creates and begins driving a new loop for cardID. It fails with
// CodeConflict if a loop for cardID already exists.
func (s *Supervisor) StartLoop(ctx context.Context, cardID string, cfg loopcfg.Config) (*loopcfg.State, error) {
	s.mu.Lock()
	if _, exists := s.loops[cardID]; exists {
		s.mu.Unlock()
		return nil, apperr.Newf(apperr.CodeConflict, "loop already exists for card %s", cardID)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	st := loopcfg.New(cardID, cfg)
	s.loops[cardID] = &entry{state: st, cancel: cancel}
	s.mu.Unlock()

	// LoopStarted is published by the StartLoop action (spec.md §4.7, C7),
	// not here — publishing it from both sides would double-fire it since
	// the real binary wires the same event bus into both collaborators.
	go s.runLoop(loopCtx, cardID)

	return cloneState(st), nil
}

// PauseLoop transitions a running loop to Paused.
func (s *Supervisor) PauseLoop(cardID string) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	if e.state.Status != loopcfg.StatusRunning {
		return nil, apperr.Newf(apperr.CodeInvalidTransition, "cannot pause loop in status %s", e.state.Status)
	}
	e.state.Status = loopcfg.StatusPaused
	if s.events != nil {
		s.events.Publish(event.NewLoopPaused(cardID, e.state.Iteration))
	}
	return cloneState(e.state), nil
}

// ResumeLoop transitions a paused loop back to Running.
func (s *Supervisor) ResumeLoop(cardID string) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	if e.state.Status != loopcfg.StatusPaused {
		return nil, apperr.Newf(apperr.CodeInvalidTransition, "cannot resume loop in status %s", e.state.Status)
	}
	e.state.Status = loopcfg.StatusRunning
	return cloneState(e.state), nil
}

// StopLoop requests a running or paused loop stop. The driving goroutine
// observes the new status on its next poll and runs the completion path.
func (s *Supervisor) StopLoop(cardID string) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	if e.state.Status != loopcfg.StatusRunning && e.state.Status != loopcfg.StatusPaused {
		return nil, apperr.Newf(apperr.CodeInvalidTransition, "cannot stop loop in status %s", e.state.Status)
	}
	e.state.Status = loopcfg.StatusStopped
	e.state.StopReason = &loopcfg.StopReason{Kind: loopcfg.StopUserStopped}
	return cloneState(e.state), nil
}

// RecordIteration atomically applies one iteration's observed deltas.
func (s *Supervisor) RecordIteration(cardID string, tokens int64, cost float64, hadError bool) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	e.state.Iteration++
	e.state.TotalTokens += tokens
	e.state.TotalCostUSD += cost
	e.state.ElapsedSeconds = uint64(time.Since(e.state.StartTime).Seconds())
	if hadError {
		e.state.ConsecutiveErrors++
	} else {
		e.state.ConsecutiveErrors = 0
	}
	return cloneState(e.state), nil
}

// RecordCheckpoint marks the loop's last_checkpoint at the current
// iteration.
func (s *Supervisor) RecordCheckpoint(cardID string) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	it := e.state.Iteration
	e.state.LastCheckpoint = &it
	return cloneState(e.state), nil
}

// CompleteLoop sets a terminal Completed status and stop reason.
func (s *Supervisor) CompleteLoop(cardID string, reason loopcfg.StopReason) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	e.state.Status = loopcfg.StatusCompleted
	e.state.StopReason = &reason
	return cloneState(e.state), nil
}

// FailLoop sets a terminal Failed status with an error stop reason.
func (s *Supervisor) FailLoop(cardID string, cause error) (*loopcfg.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.loops[cardID]
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no loop for card %s", cardID)
	}
	e.state.Status = loopcfg.StatusFailed
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	e.state.StopReason = &loopcfg.StopReason{Kind: loopcfg.StopError, Message: msg}
	return cloneState(e.state), nil
}

// RemoveLoop drops the in-memory entry for cardID, cancelling its driving
// goroutine's context if still running.
func (s *Supervisor) RemoveLoop(cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.loops[cardID]; ok {
		e.cancel()
		delete(s.loops, cardID)
	}
}

// ResumeFromCheckpoint loads cardID's most recent checkpoint, restores the
// LoopState's iteration and totals, and resumes driving it. The effective
// remaining iteration budget is implicitly reduced by the restored
// iteration count because ShouldStop compares the restored Iteration
// against the unchanged MaxIterations, per spec.md §4.3's resume path.
func (s *Supervisor) ResumeFromCheckpoint(ctx context.Context, cardID string, cfg loopcfg.Config) (*loopcfg.State, error) {
	if s.checkpoints == nil {
		return nil, apperr.New(apperr.CodeCheckpointNotFound, "no checkpoint store configured")
	}
	cp, err := s.checkpoints.Latest(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, apperr.Newf(apperr.CodeCheckpointNotFound, "no checkpoint found for card %s", cardID)
	}

	s.mu.Lock()
	if _, exists := s.loops[cardID]; exists {
		s.mu.Unlock()
		return nil, apperr.Newf(apperr.CodeConflict, "loop already exists for card %s", cardID)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	st := loopcfg.New(cardID, cfg)
	st.Iteration = cp.Iteration
	st.TotalCostUSD = cp.TotalCostUSD
	st.TotalTokens = cp.TotalTokens
	st.LastCheckpoint = &cp.Iteration
	s.loops[cardID] = &entry{state: st, cancel: cancel}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(event.NewLoopStarted(cardID))
	}
	go s.runLoop(loopCtx, cardID)

	return cloneState(st), nil
}

// snapshot returns the current status and a copy of the state without
// holding the lock for the caller's subsequent work.
func (s *Supervisor) snapshot(cardID string) (loopcfg.Status, *loopcfg.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.loops[cardID]
	if !ok {
		return "", nil, false
	}
	return e.state.Status, cloneState(e.state), true
}
