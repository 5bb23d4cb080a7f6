package executor

import (
	"context"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/internal/apperr"
)

func (e *Executor) createPullRequest(ctx context.Context, c *card.WithFlags) error {
	if e.git == nil {
		return apperr.New(apperr.CodeBadArgument, "no git client configured")
	}
	compareURL, err := e.git.Push(ctx, c.WorktreePath, c.BranchName)
	if err != nil {
		return err
	}
	c.PullRequestURL = &compareURL
	if e.repo != nil {
		if err := e.repo.UpdateCard(ctx, &c.Card); err != nil {
			return err
		}
	}
	e.publish(event.NewPullRequestCreated(c.ID, compareURL))
	return nil
}

func (e *Executor) triggerBuild(ctx context.Context, c *card.WithFlags) error {
	if e.integrations == nil {
		return apperr.New(apperr.CodeBadArgument, "no integration client configured")
	}
	if err := e.integrations.TriggerBuild(ctx, c); err != nil {
		return err
	}
	e.publish(event.NewBuildStatus(c.ID, 0, "triggered", nil))
	return nil
}

func (e *Executor) triggerDeploy(ctx context.Context, c *card.WithFlags) error {
	if e.integrations == nil {
		return apperr.New(apperr.CodeBadArgument, "no integration client configured")
	}
	if err := e.integrations.TriggerDeploy(ctx, c); err != nil {
		return err
	}
	e.publish(event.NewDeployStatus(c.ID, "", "triggered", ""))
	return nil
}

func (e *Executor) collectErrorContext(ctx context.Context, c *card.WithFlags) error {
	if e.integrations == nil {
		return apperr.New(apperr.CodeBadArgument, "no integration client configured")
	}
	cardErr, err := e.integrations.CollectErrorContext(ctx, c)
	if err != nil {
		return err
	}
	if cardErr == nil {
		return nil
	}
	if e.repo != nil {
		if err := e.repo.CreateCardError(ctx, cardErr); err != nil {
			return err
		}
	}
	e.publish(event.NewErrorDetected(c.ID, cardErr.ID, cardErr.Type, cardErr.Message, string(cardErr.Category)))
	return nil
}
