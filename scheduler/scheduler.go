// Package scheduler drives the integration pollers spec.md §9 calls for:
// periodic re-checks of in-flight builds and deploys, expressed as
// message-producing tasks whose outputs pass through the Card State
// Machine (C2) rather than mutating card state directly, plus a
// checkpoint-interval housekeeping sweep. Grounded on the teacher's
// services/automation package, which resolves its own "cron" trigger type
// against a hand-rolled 5-field parser (automation_triggers.go); cardforge
// instead schedules with github.com/robfig/cron/v3 directly, since the
// spec introduces no bespoke trigger-condition language of its own to
// preserve — just fixed operational cadences.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/internal/apperr"
	"github.com/cardforge/cardforge/internal/obslog"
)

// CardSource lists cards currently sitting in one of the given states, the
// narrow read surface the pollers need without depending on the full
// persistence.Repository.
type CardSource interface {
	CardsInStates(ctx context.Context, states []card.State) ([]card.WithFlags, error)
}

// ActionRunner executes an action list against a single card. Satisfied
// by *executor.Executor.
type ActionRunner interface {
	Execute(ctx context.Context, c *card.WithFlags, actions []card.Action) error
}

// Housekeeper performs periodic maintenance unrelated to any one card,
// e.g. pruning checkpoints/snapshots for cards that reached Archived.
type Housekeeper interface {
	Sweep(ctx context.Context) error
}

// Schedule holds the cron expressions driving each poller. Entries left
// empty are not scheduled.
type Schedule struct {
	BuildPoll    string
	DeployPoll   string
	Housekeeping string
}

// DefaultSchedule polls builds and deploys every 30 seconds and sweeps
// once an hour, following the cadence original_source's monitor loops use
// for ArgoCD/build status polling.
func DefaultSchedule() Schedule {
	return Schedule{
		BuildPoll:    "@every 30s",
		DeployPoll:   "@every 30s",
		Housekeeping: "@hourly",
	}
}

// Scheduler wraps a robfig/cron/v3 Cron instance registering the
// integration pollers and housekeeping sweep.
type Scheduler struct {
	cron        *cron.Cron
	source      CardSource
	runner      ActionRunner
	housekeeper Housekeeper
	log         *obslog.Logger
}

// New builds a Scheduler. housekeeper may be nil to skip the sweep.
func New(source CardSource, runner ActionRunner, housekeeper Housekeeper, log *obslog.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		source:      source,
		runner:      runner,
		housekeeper: housekeeper,
		log:         log,
	}
}

// Start registers every poller in sched and starts the cron scheduler in
// its own goroutine. Returns an error if any cron expression is invalid.
func (s *Scheduler) Start(ctx context.Context, sched Schedule) error {
	if sched.BuildPoll != "" {
		if _, err := s.cron.AddFunc(sched.BuildPoll, func() { s.pollBuilds(ctx) }); err != nil {
			return apperr.Wrap(apperr.CodeBadArgument, "invalid build poll schedule", err)
		}
	}
	if sched.DeployPoll != "" {
		if _, err := s.cron.AddFunc(sched.DeployPoll, func() { s.pollDeploys(ctx) }); err != nil {
			return apperr.Wrap(apperr.CodeBadArgument, "invalid deploy poll schedule", err)
		}
	}
	if sched.Housekeeping != "" && s.housekeeper != nil {
		if _, err := s.cron.AddFunc(sched.Housekeeping, func() { s.sweep(ctx) }); err != nil {
			return apperr.Wrap(apperr.CodeBadArgument, "invalid housekeeping schedule", err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) pollBuilds(ctx context.Context) {
	s.pollState(ctx, card.StateBuilding, card.ActionMonitorBuild)
}

func (s *Scheduler) pollDeploys(ctx context.Context) {
	s.pollState(ctx, card.StateDeploying, card.ActionMonitorArgoCD)
}

// pollState re-executes action against every card currently in state,
// re-observing the external system each tick; a resulting synthetic
// trigger is fed back through the Card State Machine by the action
// itself (executor's observeAndFeed), never mutated here directly.
func (s *Scheduler) pollState(ctx context.Context, state card.State, action card.Action) {
	cards, err := s.source.CardsInStates(ctx, []card.State{state})
	if err != nil {
		s.logError("listing cards for poll", state, err)
		return
	}
	for i := range cards {
		c := &cards[i]
		if err := s.runner.Execute(ctx, c, []card.Action{action}); err != nil {
			s.logError("running poller action", state, err)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if s.housekeeper == nil {
		return
	}
	if err := s.housekeeper.Sweep(ctx); err != nil && s.log != nil {
		s.log.WithError(err).Warn("housekeeping sweep failed")
	}
}

func (s *Scheduler) logError(msg string, state card.State, err error) {
	if s.log == nil {
		return
	}
	s.log.WithError(err).WithField("state", string(state)).Warn(msg)
}
