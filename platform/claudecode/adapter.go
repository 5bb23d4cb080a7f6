// Package claudecode implements platform.Adapter for the Claude Code CLI,
// the concrete Agent Platform Adapter (C5) cardforge ships by default.
// Grounded on spec.md §4.5's capability set and on the teacher's
// test/contract/neoexpress.go subprocess idiom (see platform/session.go,
// which this package drives).
package claudecode

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/internal/obslog"
	"github.com/cardforge/cardforge/platform"
	"github.com/cardforge/cardforge/platform/breaker"
	"github.com/cardforge/cardforge/platform/ratelimit"
)

const platformName = "claude-code"

// killGrace is how long StopSession waits for a killed process to actually
// exit before abandoning the handle (spec.md §5).
const killGrace = 5 * time.Second

// Adapter spawns the "claude" CLI in --print/--output-format=stream-json
// mode, one subprocess per session.
type Adapter struct {
	binary  string
	breaker *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	log     *obslog.Logger

	mu       sync.Mutex
	sessions map[string]*platform.Session
}

// New builds an Adapter. binary defaults to "claude" on PATH if empty.
// maxConcurrent <= 0 means no adapter-wide concurrency ceiling.
func New(binary string, maxConcurrent int, log *obslog.Logger) *Adapter {
	if binary == "" {
		binary = "claude"
	}
	if log == nil {
		log = obslog.Noop()
	}
	return &Adapter{
		binary:   binary,
		breaker:  breaker.New(platformName),
		limiter:  ratelimit.New(2, maxConcurrent),
		log:      log,
		sessions: make(map[string]*platform.Session),
	}
}

func (a *Adapter) Name() string { return platformName }

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(a.binary)
	return err == nil
}

func (a *Adapter) StartSession(ctx context.Context, cardID, worktreePath, prompt string, cfg platform.SessionConfig) (*platform.Handle, error) {
	if !a.IsAvailable(ctx) {
		return nil, apperr.Newf(apperr.CodeBinaryNotFound, "%s binary not found on PATH", a.binary)
	}

	ok, err := a.limiter.Acquire(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProcessError, "waiting for spawn slot", err)
	}
	if !ok {
		return nil, apperr.Newf(apperr.CodeSubscriptionLimit, "platform %s is at its max-concurrent session limit", platformName)
	}

	h := &platform.Handle{
		ID:           uuid.NewString(),
		CardID:       cardID,
		Platform:     platformName,
		WorktreePath: worktreePath,
		StartedAt:    time.Now().UTC(),
	}

	args := []string{"--print", prompt, "--output-format", "stream-json"}
	env := map[string]string{}
	if cfg.ConfigDir != "" {
		env["CLAUDE_CONFIG_DIR"] = cfg.ConfigDir
	}
	for k, v := range cfg.Env {
		env[k] = v
	}

	sess := platform.NewSession(h, cfg.CompletionSignal, a.log)

	_, err = a.breaker.Execute(func() (interface{}, error) {
		return nil, sess.Start(ctx, a.binary, args, worktreePath, env)
	})
	if err != nil {
		a.limiter.Release()
		return nil, apperr.Wrapf(apperr.CodeProcessError, err, "starting %s session for card %s", platformName, cardID)
	}

	a.mu.Lock()
	a.sessions[h.ID] = sess
	a.mu.Unlock()

	return h, nil
}

func (a *Adapter) get(h *platform.Handle) (*platform.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[h.ID]
	return sess, ok
}

func (a *Adapter) StopSession(ctx context.Context, h *platform.Handle) (*platform.Result, error) {
	sess, ok := a.get(h)
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no session %s", h.ID)
	}
	sess.Kill(killGrace)
	a.limiter.Release()

	a.mu.Lock()
	delete(a.sessions, h.ID)
	a.mu.Unlock()

	return sess.Result("user_stopped"), nil
}

func (a *Adapter) IsSessionRunning(h *platform.Handle) bool {
	sess, ok := a.get(h)
	if !ok {
		return false
	}
	return sess.IsRunning()
}

func (a *Adapter) GetSessionStatus(h *platform.Handle) (*platform.Status, error) {
	sess, ok := a.get(h)
	if !ok {
		return nil, apperr.Newf(apperr.CodeLoopNotFound, "no session %s", h.ID)
	}
	return sess.Status(), nil
}

var _ platform.Adapter = (*Adapter)(nil)
