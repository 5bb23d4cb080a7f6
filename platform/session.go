package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cardforge/cardforge/internal/obslog"
	"github.com/cardforge/cardforge/streamparser"
)

// Session is the managed-subprocess record behind one Handle, shared by
// every concrete platform.Adapter implementation. Shape follows
// test/contract/neoexpress.go's NeoExpress: a mutex guards cmd/running so
// the stdout-reading goroutine and the adapter's supervisor-facing methods
// never race calling Kill or inspecting exit state concurrently (spec.md §5
// "a SessionHandle's child process is shared... via a small lock; only one
// task calls kill or try_wait").
type Session struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	running  bool
	exitErr  error
	exitedAt time.Time

	handle *Handle
	parser *streamparser.Parser
	log    *obslog.Logger

	doneCh chan struct{}
}

// NewSession constructs a Session for h, watching for completionSignal in
// the agent's output.
func NewSession(h *Handle, completionSignal string, log *obslog.Logger) *Session {
	if log == nil {
		log = obslog.Noop()
	}
	return &Session{
		handle: h,
		parser: streamparser.New(completionSignal, log),
		log:    log,
		doneCh: make(chan struct{}),
	}
}

// Start spawns bin with args, cwd worktreePath, env augmented by extraEnv,
// stdout line-buffered into the session's parser, stderr drained to the
// debug log, stdin closed. Returns once the process has actually started,
// not once it has exited.
func (s *Session) Start(ctx context.Context, bin string, args []string, worktreePath string, extraEnv map[string]string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = worktreePath
	cmd.Env = os.Environ()
	for k, v := range extraEnv {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if startErr := cmd.Start(); startErr != nil {
		s.mu.Unlock()
		return startErr
	}
	s.cmd = cmd
	s.running = true
	s.mu.Unlock()

	go s.readStdout(stdout)
	go s.drainStderr(stderr)
	go s.wait()

	return nil
}

func (s *Session) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.parser.ParseChunk(scanner.Text() + "\n")
	}
}

func (s *Session) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.log.WithField("card_id", s.handle.CardID).Debugf("agent stderr: %s", scanner.Text())
	}
}

func (s *Session) wait() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	s.running = false
	s.exitErr = err
	s.exitedAt = time.Now().UTC()
	s.mu.Unlock()

	close(s.doneCh)
}

// IsRunning is a non-destructive liveness probe.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done returns a channel closed once the process has exited, for callers
// that want to wait without polling.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Kill is best-effort: the teacher's neoexpress.go also calls Process.Kill
// directly rather than a two-stage terminate-then-kill. Awaits exit up to
// grace, then abandons the handle and logs.
func (s *Session) Kill(grace time.Duration) {
	s.mu.Lock()
	cmd := s.cmd
	running := s.running
	s.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Kill()

	select {
	case <-s.doneCh:
	case <-time.After(grace):
		s.log.WithField("card_id", s.handle.CardID).Warn("agent process did not exit within grace period, abandoning handle")
	}
}

// Status reports the session's current totals and coarse lifecycle state.
func (s *Session) Status() *Status {
	s.mu.Lock()
	running := s.running
	exited := !s.exitedAt.IsZero()
	exitErr := s.exitErr
	s.mu.Unlock()

	state := StateRunning
	switch {
	case running:
		state = StateRunning
	case exited && exitErr != nil:
		state = StateFailed
	case exited:
		state = StateCompleted
	default:
		state = StateStarting
	}

	return &Status{
		State:        state,
		Iteration:    s.parser.IterationCount(),
		RuntimeMS:    time.Since(s.handle.StartedAt).Milliseconds(),
		TotalCostUSD: s.parser.TotalCost(),
		TotalTokens:  s.parser.EstimatedTokens(),
	}
}

// Result builds the final Result for a session. The end reason is
// "completed" once the completion sentinel has been seen, else "error" if
// the process has exited with an error (a killed process included), else
// "process_exited" if it has exited; reason is used only while the process
// has not exited.
func (s *Session) Result(reason string) *Result {
	s.mu.Lock()
	exitErr := s.exitErr
	exited := !s.exitedAt.IsZero()
	s.mu.Unlock()

	endReason := reason
	switch {
	case s.parser.HasCompletionSignal():
		endReason = "completed"
	case exited && exitErr != nil:
		endReason = "error"
	case exited:
		endReason = "process_exited"
	}

	return &Result{
		EndReason:    endReason,
		Output:       s.parser.LastResponse(),
		Iteration:    s.parser.IterationCount(),
		TotalTokens:  s.parser.EstimatedTokens(),
		TotalCostUSD: s.parser.TotalCost(),
		CommitSHA:    s.parser.ExtractCommitSHA(),
	}
}

// Parser exposes the session's stream parser for callers (e.g. LoopAgent)
// that need delta-based accounting between polls.
func (s *Session) Parser() *streamparser.Parser { return s.parser }
