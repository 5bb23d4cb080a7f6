// Package breaker wraps an Agent Platform Adapter's start_session with a
// platform-wide circuit breaker (SPEC_FULL.md §11), distinct from the
// per-card CircuitBreaker stop reason in domain/loopcfg: this one trips
// when the CLI binary itself is crash-looping across every card, not when
// one card has too many consecutive errors.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// New builds a per-platform breaker: it opens after 5 consecutive failures,
// stays open for 30s, then allows a single trial request half-open before
// closing again.
func New(platformName string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "platform:" + platformName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
