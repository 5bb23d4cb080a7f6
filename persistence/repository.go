// Package persistence defines the repository interface the cardforge core
// consumes (spec.md §6): CRUD over Cards, Projects, Attempts, CardErrors,
// Snapshots, plus the two atomic operations update_card_state and
// add_card_cost. Loop checkpoints are not duplicated here — they stay
// behind the dedicated checkpoint.Store contract (C4), which spec.md §4.4
// already specifies in full.
package persistence

import (
	"context"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/project"
)

// Repository is every persistence operation the core depends on. All
// methods are suspension points and return *apperr.Error values tagged
// CodeCardNotFound/CodeConflict/CodeStorageError (spec.md §6: "NotFound,
// Conflict, or StorageError").
type Repository interface {
	CreateProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	UpdateProject(ctx context.Context, p *project.Project) error
	DeleteProject(ctx context.Context, id string) error

	CreateCard(ctx context.Context, c *card.Card) error
	GetCard(ctx context.Context, id string) (*card.WithFlags, error)
	ListCardsByProject(ctx context.Context, projectID string) ([]card.Card, error)
	// CardsInStates lists every card currently sitting in one of states,
	// across all projects — the read surface the scheduler's integration
	// pollers need (spec.md §9 "Integration pollers").
	CardsInStates(ctx context.Context, states []card.State) ([]card.WithFlags, error)
	UpdateCard(ctx context.Context, c *card.Card) error
	DeleteCard(ctx context.Context, id string) error

	// UpdateCardState atomically applies a (from, to, trigger) transition:
	// it updates the card row's state/previous_state/state_changed_at and
	// inserts a TransitionLog row in the same operation. Returns
	// CodeConflict if the card's current state no longer matches from
	// (lost the race to a concurrent writer).
	UpdateCardState(ctx context.Context, cardID string, from, to card.State, trigger card.Trigger) error

	// AddCardCost atomically increments a card's cumulative cost/time
	// totals by the given deltas.
	AddCardCost(ctx context.Context, cardID string, deltaCostUSD float64, deltaTimeMS int64) error

	ListTransitions(ctx context.Context, cardID string) ([]card.TransitionLog, error)

	CreateAttempt(ctx context.Context, a *card.Attempt) error
	GetAttempt(ctx context.Context, id string) (*card.Attempt, error)
	ListAttemptsByCard(ctx context.Context, cardID string) ([]card.Attempt, error)
	UpdateAttempt(ctx context.Context, a *card.Attempt) error

	CreateCardError(ctx context.Context, e *card.CardError) error
	ListCardErrorsByCard(ctx context.Context, cardID string) ([]card.CardError, error)
	ResolveCardError(ctx context.Context, id, resolvingAttemptID string) error

	CreateSnapshot(ctx context.Context, s *card.Snapshot) error
	ListSnapshotsByCard(ctx context.Context, cardID string) ([]card.Snapshot, error)
}
