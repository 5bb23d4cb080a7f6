// Package ratelimit enforces an adapter's max-concurrent session ceiling
// ahead of the per-card SubscriptionLimit failure mode (spec.md §4.5,
// SPEC_FULL.md §11), grounded on the teacher's infrastructure/ratelimit
// token-bucket usage of golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter bounds both the instantaneous spawn rate (a token bucket) and the
// number of concurrently live sessions (a counting semaphore) for one
// platform adapter.
type Limiter struct {
	spawn *rate.Limiter

	mu      sync.Mutex
	active  int
	maxConc int
}

// New builds a Limiter allowing spawnsPerSecond new sessions per second
// (burst 1) and at most maxConcurrent live sessions at once. maxConcurrent
// <= 0 means unbounded concurrency (rate limiting still applies).
func New(spawnsPerSecond float64, maxConcurrent int) *Limiter {
	if spawnsPerSecond <= 0 {
		spawnsPerSecond = 1
	}
	return &Limiter{
		spawn:   rate.NewLimiter(rate.Limit(spawnsPerSecond), 1),
		maxConc: maxConcurrent,
	}
}

// Acquire blocks for the spawn-rate token (respecting ctx) then reserves a
// concurrency slot. ok is false, with no slot held, if the adapter is
// already at its max-concurrent ceiling — the caller maps this to
// CodeSubscriptionLimit.
func (l *Limiter) Acquire(ctx context.Context) (ok bool, err error) {
	if waitErr := l.spawn.Wait(ctx); waitErr != nil {
		return false, waitErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxConc > 0 && l.active >= l.maxConc {
		return false, nil
	}
	l.active++
	return true, nil
}

// Release gives back a concurrency slot acquired by a successful Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}
