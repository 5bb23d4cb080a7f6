// Package checkpoint defines the Checkpoint Store (C4) contract: a durable
// projection of LoopState, grounded on
// original_source/src/loops/checkpoint.rs. Concrete backends live in
// checkpoint/postgres (system of record), checkpoint/rediscache (a
// read-through accelerator in front of any Store), and checkpoint/memory
// (an in-memory test double), mirroring the teacher's per-service
// store_postgres.go pattern of a narrow Store interface with swappable
// implementations.
package checkpoint

import (
	"context"

	"github.com/cardforge/cardforge/domain/loopcfg"
)

// MaxCheckpointsPerCard bounds retention: Save prunes older checkpoints so
// at most this many survive per card, keeping the most recent by
// iteration descending. Matches original_source's MAX_CHECKPOINTS_PER_CARD.
const MaxCheckpointsPerCard = 3

// Store is the Checkpoint Store's public contract.
type Store interface {
	// Save inserts a new checkpoint and then prunes the card's checkpoints
	// to the MaxCheckpointsPerCard most recent. Both steps must appear
	// atomic to readers.
	Save(ctx context.Context, cp loopcfg.Checkpoint) error
	// Latest returns the most recent checkpoint for cardID, or nil if none
	// exists.
	Latest(ctx context.Context, cardID string) (*loopcfg.Checkpoint, error)
	// List returns every checkpoint for cardID ordered by iteration desc.
	List(ctx context.Context, cardID string) ([]loopcfg.Checkpoint, error)
	// DeleteAll removes every checkpoint for cardID.
	DeleteAll(ctx context.Context, cardID string) error
	// HasResumable reports whether cardID has at least one checkpoint.
	HasResumable(ctx context.Context, cardID string) (bool, error)
}
