// Package memory provides an in-memory checkpoint.Store test double, in the
// teacher's style of pairing every *_postgres.go store with a lightweight
// in-memory fake for unit tests (see e.g. the gasbank and secrets packages'
// table-driven tests against a fake Store).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cardforge/cardforge/checkpoint"
	"github.com/cardforge/cardforge/domain/loopcfg"
)

// Store is a goroutine-safe, process-local implementation of
// checkpoint.Store. It never errors except for JSON-corruption paths,
// which it does not simulate — corruption is exercised via a real Store's
// RestoreState path in domain/loopcfg tests instead.
type Store struct {
	mu          sync.Mutex
	checkpoints map[string][]loopcfg.Checkpoint // card_id -> checkpoints
}

// New constructs an empty Store.
func New() *Store {
	return &Store{checkpoints: make(map[string][]loopcfg.Checkpoint)}
}

func (s *Store) Save(ctx context.Context, cp loopcfg.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[cp.CardID] = append(s.checkpoints[cp.CardID], cp)
	sort.Slice(s.checkpoints[cp.CardID], func(i, j int) bool {
		return s.checkpoints[cp.CardID][i].Iteration > s.checkpoints[cp.CardID][j].Iteration
	})
	if len(s.checkpoints[cp.CardID]) > checkpoint.MaxCheckpointsPerCard {
		s.checkpoints[cp.CardID] = s.checkpoints[cp.CardID][:checkpoint.MaxCheckpointsPerCard]
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, cardID string) (*loopcfg.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := s.checkpoints[cardID]
	if len(cps) == 0 {
		return nil, nil
	}
	cp := cps[0]
	return &cp, nil
}

func (s *Store) List(ctx context.Context, cardID string) ([]loopcfg.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]loopcfg.Checkpoint, len(s.checkpoints[cardID]))
	copy(out, s.checkpoints[cardID])
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, cardID)
	return nil
}

func (s *Store) HasResumable(ctx context.Context, cardID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.checkpoints[cardID]) > 0, nil
}
