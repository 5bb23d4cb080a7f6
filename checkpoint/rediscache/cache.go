// Package rediscache wraps a checkpoint.Store with a Redis-backed
// read-through cache for the hot path (Latest / HasResumable), which the
// Loop Supervisor polls on every resume attempt. Postgres remains the sole
// system of record — Redis never holds data the Postgres store doesn't
// also have, following the teacher's pattern (seen across the
// packages/*/service.go files) of layering go-redis in front of a
// *_postgres.go store purely as an accelerator, never as a replacement.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/checkpoint"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/internal/apperr"
)

// defaultTTL bounds how long a cached "latest checkpoint" answer is trusted
// before falling back to Postgres; short enough that a crashed supervisor
// restarting minutes later still sees a fresh value.
const defaultTTL = 10 * time.Minute

// Store decorates an underlying checkpoint.Store with a Redis read-through
// cache in front of Latest and HasResumable.
type Store struct {
	underlying checkpoint.Store
	redis      *redis.Client
	ttl        time.Duration
}

// New wraps underlying with a Redis cache. redis may be nil, in which case
// Store degrades to calling underlying directly (Redis is explicitly
// optional per SPEC_FULL.md §11 / config.Config.Redis.Enabled).
func New(underlying checkpoint.Store, client *redis.Client) *Store {
	return &Store{underlying: underlying, redis: client, ttl: defaultTTL}
}

func latestKey(cardID string) string { return "cardforge:checkpoint:latest:" + cardID }

// Save writes through to the underlying store and refreshes the cache
// entry so a subsequent Latest call doesn't miss.
func (s *Store) Save(ctx context.Context, cp loopcfg.Checkpoint) error {
	if err := s.underlying.Save(ctx, cp); err != nil {
		return err
	}
	s.cacheLatest(ctx, cp)
	return nil
}

func (s *Store) cacheLatest(ctx context.Context, cp loopcfg.Checkpoint) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return
	}
	// Best-effort: a cache write failure never fails the caller's Save.
	_ = s.redis.Set(ctx, latestKey(cp.CardID), payload, s.ttl).Err()
}

// Latest checks Redis first; on a miss (or no Redis configured) it falls
// through to the underlying store and populates the cache.
func (s *Store) Latest(ctx context.Context, cardID string) (*loopcfg.Checkpoint, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, latestKey(cardID)).Bytes()
		if err == nil {
			var cp loopcfg.Checkpoint
			if jsonErr := json.Unmarshal(raw, &cp); jsonErr == nil {
				return &cp, nil
			}
			// A corrupted cache entry is not a CheckpointCorrupted
			// condition — it's just a stale/bad cache write. Fall
			// through to the system of record instead of surfacing it.
		} else if err != redis.Nil {
			return nil, apperr.Wrap(apperr.CodeStorageError, "reading checkpoint cache", err)
		}
	}

	cp, err := s.underlying.Latest(ctx, cardID)
	if err != nil || cp == nil {
		return cp, err
	}
	s.cacheLatest(ctx, *cp)
	return cp, nil
}

// List always reads the system of record — listing is not on the hot path.
func (s *Store) List(ctx context.Context, cardID string) ([]loopcfg.Checkpoint, error) {
	return s.underlying.List(ctx, cardID)
}

// DeleteAll removes from the system of record and evicts the cache entry.
func (s *Store) DeleteAll(ctx context.Context, cardID string) error {
	if err := s.underlying.DeleteAll(ctx, cardID); err != nil {
		return err
	}
	if s.redis != nil {
		_ = s.redis.Del(ctx, latestKey(cardID)).Err()
	}
	return nil
}

// HasResumable checks the cache first, then the system of record.
func (s *Store) HasResumable(ctx context.Context, cardID string) (bool, error) {
	if s.redis != nil {
		if _, err := s.redis.Get(ctx, latestKey(cardID)).Result(); err == nil {
			return true, nil
		}
	}
	return s.underlying.HasResumable(ctx, cardID)
}
