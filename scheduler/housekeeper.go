package scheduler

import (
	"context"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/internal/apperr"
)

// CheckpointPruner is the narrow slice of checkpoint.Store the
// housekeeping sweep needs.
type CheckpointPruner interface {
	DeleteAll(ctx context.Context, cardID string) error
}

// MetricsForgetter is the narrow slice of metrics.Recorder the
// housekeeping sweep needs.
type MetricsForgetter interface {
	Forget(cardID string)
}

// DefaultHousekeeper sweeps Archived cards' loop checkpoints and
// in-memory metrics snapshots, since neither is needed once a card has
// reached its terminal archived state and both would otherwise grow
// without bound across the supervisor's lifetime.
type DefaultHousekeeper struct {
	source      CardSource
	checkpoints CheckpointPruner
	metrics     MetricsForgetter
}

// NewDefaultHousekeeper builds a DefaultHousekeeper. metrics may be nil
// to skip the in-memory snapshot cleanup.
func NewDefaultHousekeeper(source CardSource, checkpoints CheckpointPruner, metrics MetricsForgetter) *DefaultHousekeeper {
	return &DefaultHousekeeper{source: source, checkpoints: checkpoints, metrics: metrics}
}

// Sweep prunes checkpoints and metrics snapshots for every Archived card.
func (h *DefaultHousekeeper) Sweep(ctx context.Context) error {
	archived, err := h.source.CardsInStates(ctx, []card.State{card.StateArchived})
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageError, "listing archived cards", err)
	}
	for _, c := range archived {
		if h.checkpoints != nil {
			if err := h.checkpoints.DeleteAll(ctx, c.ID); err != nil {
				return apperr.Wrapf(apperr.CodeStorageError, err, "pruning checkpoints for archived card %s", c.ID)
			}
		}
		if h.metrics != nil {
			h.metrics.Forget(c.ID)
		}
	}
	return nil
}

var _ Housekeeper = (*DefaultHousekeeper)(nil)
