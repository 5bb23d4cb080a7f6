package executor

import (
	"context"
	"path/filepath"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/platform"
)

func (e *Executor) createGitWorktree(ctx context.Context, c *card.WithFlags) error {
	if e.git == nil {
		return apperr.New(apperr.CodeBadArgument, "no git client configured")
	}
	branch, path, err := e.git.CreateWorktree(ctx, c.ID)
	if err != nil {
		return err
	}
	c.BranchName = branch
	c.WorktreePath = path
	if e.repo != nil {
		if err := e.repo.UpdateCard(ctx, &c.Card); err != nil {
			return err
		}
	}
	e.publish(event.NewWorktreeCreated(c.ID, path, branch))

	if e.configSyncer != nil {
		synced, err := e.configSyncer.Sync(ctx, c.ID, filepath.Join(path, ".claude"))
		if err != nil {
			return err
		}
		e.publish(synced)
	}
	return nil
}

func (e *Executor) startLoop(ctx context.Context, c *card.WithFlags) error {
	if e.loops == nil {
		return apperr.New(apperr.CodeBadArgument, "no loop supervisor configured")
	}
	cfg := loopcfg.DefaultConfig()
	if e.agent != nil {
		e.agent.Register(c.ID, c.WorktreePath, c.TaskPrompt, platform.SessionConfig{
			CompletionSignal: cfg.CompletionSignal,
		})
	}
	if _, err := e.loops.StartLoop(ctx, c.ID, cfg); err != nil {
		return err
	}
	e.publish(event.NewLoopStarted(c.ID))
	return nil
}

func (e *Executor) pauseLoop(ctx context.Context, c *card.WithFlags) error {
	if e.loops == nil {
		return apperr.New(apperr.CodeBadArgument, "no loop supervisor configured")
	}
	st, err := e.loops.PauseLoop(c.ID)
	if err != nil {
		return err
	}
	e.publish(event.NewLoopPaused(c.ID, st.Iteration))
	return nil
}

func (e *Executor) stopLoop(ctx context.Context, c *card.WithFlags) error {
	if e.loops == nil {
		return apperr.New(apperr.CodeBadArgument, "no loop supervisor configured")
	}
	st, err := e.loops.StopLoop(c.ID)
	if err != nil {
		return err
	}
	e.publish(event.NewLoopStopped(c.ID, st.Iteration, st.StopReason))
	return nil
}

// restartLoopWithError increments the card's error count and restarts the
// loop, per spec.md §4.7's RestartLoopWithError row.
func (e *Executor) restartLoopWithError(ctx context.Context, c *card.WithFlags) error {
	c.ErrorCount++
	if e.repo != nil {
		if err := e.repo.UpdateCard(ctx, &c.Card); err != nil {
			return err
		}
	}
	return e.startLoop(ctx, c)
}
