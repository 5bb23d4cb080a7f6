// Command cardforge is the orchestrator process: it wires the State
// Machine, Loop Supervisor, Action Executor, Event Bus, and their
// storage/platform collaborators together and runs until signalled,
// following the teacher's cmd/appserver/main.go idiom (flag overrides
// over config.Load, context.Background, signal.Notify). Shutdown stops the
// scheduler once a signal arrives; no shutdown deadline is applied.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/checkpoint"
	pgcheckpoint "github.com/cardforge/cardforge/checkpoint/postgres"
	"github.com/cardforge/cardforge/checkpoint/rediscache"
	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/eventbus"
	"github.com/cardforge/cardforge/executor"
	"github.com/cardforge/cardforge/integrations"
	"github.com/cardforge/cardforge/internal/config"
	"github.com/cardforge/cardforge/internal/engine"
	"github.com/cardforge/cardforge/internal/obslog"
	"github.com/cardforge/cardforge/loopsupervisor"
	"github.com/cardforge/cardforge/metrics"
	pgrepo "github.com/cardforge/cardforge/persistence/postgres"
	"github.com/cardforge/cardforge/platform"
	"github.com/cardforge/cardforge/platform/claudecode"
	"github.com/cardforge/cardforge/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars always take precedence)")
	dsn := flag.String("dsn", "", "Postgres DSN (overrides config/env; cards/projects/attempts storage)")
	runMigrations := flag.Bool("migrate", true, "apply embedded database migrations on startup")
	binaryPath := flag.String("claude-binary", "", "path to the claude CLI binary (overrides config/env; defaults to \"claude\" on PATH)")
	repoPath := flag.String("repo", ".", "path to the git repository cards operate against")
	worktreeRoot := flag.String("worktree-root", "worktrees", "directory new card worktrees are created under")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *binaryPath != "" {
		cfg.Platform.BinaryPath = *binaryPath
	}

	logger := obslog.New(cfg.Logging)
	rootCtx := context.Background()

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("ping postgres: %v", err)
	}
	cancel()

	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	if *runMigrations {
		if err := pgrepo.Migrate(db); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	sqlxDB := sqlx.NewDb(db, "postgres")
	repo := pgrepo.New(sqlxDB)

	checkpoints := buildCheckpointStore(cfg, sqlxDB)

	events := eventbus.New()
	recorder := metrics.NewRecorder()

	adapter := claudecode.New(cfg.Platform.BinaryPath, cfg.Platform.MaxConcurrent, logger)
	agent := platform.NewLoopAgent(adapter, logger)

	// supervisor and exec each need a CardTransitioner at construction time,
	// but both CardTransitioner implementations are methods on the single
	// *engine.Engine that itself depends on exec (as its ActionRunner).
	// lazyEngine breaks the cycle: it's handed to both constructors up
	// front and resolved once cardEngine is assigned below, the same
	// deferred-wiring trick the teacher's internal/app.New uses for
	// services that reference each other cyclically.
	forwarder := &lazyEngine{}

	supervisor := loopsupervisor.New(agent, checkpoints, events, forwarder, logger)

	gitClient := executor.NewGitCLI(*repoPath, *worktreeRoot, "origin")
	manualIntegrations := integrations.NewManual()

	exec := executor.New(
		supervisor,
		agent,
		gitClient,
		nil, // ConfigSyncer: bring your own project config bundle via a dedicated deployment wiring; none ships by default.
		manualIntegrations,
		repo,
		forwarder,
		events,
		recorder,
		logger,
	)

	forwarder.set(engine.New(repo, exec, events, logger))

	housekeeper := scheduler.NewDefaultHousekeeper(repo, checkpoints, recorder)
	sched := scheduler.New(repo, exec, housekeeper, logger)
	if err := sched.Start(rootCtx, scheduler.DefaultSchedule()); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}

	logger.Info("cardforge orchestrator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	sched.Stop()
}

// buildCheckpointStore returns a Postgres-backed checkpoint.Store, fronted
// by a Redis read-through cache when cfg.Redis.Enabled.
func buildCheckpointStore(cfg *config.Config, db *sqlx.DB) checkpoint.Store {
	base := pgcheckpoint.New(db)
	if !cfg.Redis.Enabled {
		return base
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return rediscache.New(base, client)
}

// lazyEngine satisfies both loopsupervisor.CardTransitioner and
// executor.CardTransitioner by forwarding to an *engine.Engine assigned
// after construction (see main's cyclic-wiring comment above).
type lazyEngine struct {
	e *engine.Engine
}

func (l *lazyEngine) set(e *engine.Engine) { l.e = e }

func (l *lazyEngine) ApplyStopReason(ctx context.Context, cardID string, reason loopcfg.StopReason) error {
	return l.e.ApplyStopReason(ctx, cardID, reason)
}

func (l *lazyEngine) ApplyTrigger(ctx context.Context, cardID string, trigger card.Trigger) error {
	return l.e.ApplyTrigger(ctx, cardID, trigger)
}
