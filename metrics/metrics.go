// Package metrics records per-card cost/token/iteration rollups and
// exposes them as Prometheus gauges/counters, the same
// prometheus.NewRegistry()-plus-init()-MustRegister() pattern as the
// teacher's pkg/metrics, narrowed to cardforge's domain. Grounded on
// original_source/src/metrics/mod.rs's SessionMetrics/MetricsSummary
// (SPEC_FULL.md §12): a `metrics.Snapshot` keyed by card with cumulative
// cost, tokens, and wall-clock time, built up by RecordIteration calls
// rather than queried from a SQL summary view.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds cardforge's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	iterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardforge",
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Total loop iterations run, by platform.",
		},
		[]string{"platform"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardforge",
			Subsystem: "loop",
			Name:      "tokens_total",
			Help:      "Total tokens consumed across loop iterations, by platform.",
		},
		[]string{"platform"},
	)

	costTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardforge",
			Subsystem: "loop",
			Name:      "cost_usd_total",
			Help:      "Total estimated cost in USD across loop iterations, by platform.",
		},
		[]string{"platform"},
	)

	cardCostUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cardforge",
			Subsystem: "card",
			Name:      "cost_usd",
			Help:      "Cumulative cost in USD for the card's lifetime so far.",
		},
		[]string{"card_id"},
	)

	cardTokens = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cardforge",
			Subsystem: "card",
			Name:      "tokens",
			Help:      "Cumulative tokens consumed for the card's lifetime so far.",
		},
		[]string{"card_id"},
	)

	cardIterations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cardforge",
			Subsystem: "card",
			Name:      "iterations",
			Help:      "Loop iteration count for the card so far.",
		},
		[]string{"card_id"},
	)

	cardDurationSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cardforge",
			Subsystem: "card",
			Name:      "duration_seconds",
			Help:      "Cumulative wall-clock time spent on the card's loop so far.",
		},
		[]string{"card_id"},
	)
)

func init() {
	Registry.MustRegister(
		iterationsTotal,
		tokensTotal,
		costTotal,
		cardCostUSD,
		cardTokens,
		cardIterations,
		cardDurationSeconds,
	)
}

// Snapshot is a point-in-time rollup of one card's cumulative loop
// metrics, the Go analogue of original_source's SessionMetrics collapsed
// to a single running total per card rather than one row per session.
type Snapshot struct {
	CardID        string
	Platform      string
	TotalTokens   int64
	TotalCostUSD  float64
	TotalDuration time.Duration
	Iterations    int
	LastUpdated   time.Time
}

// Recorder maintains an in-memory Snapshot per card, updated by each
// RecordIteration call, and mirrors the running totals into Prometheus.
type Recorder struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{snapshots: make(map[string]Snapshot)}
}

// RecordIteration folds one loop iteration's deltas into cardID's running
// Snapshot. The Loop Supervisor does not call it: its iteration protocol
// keeps its running totals in loopcfg.State only, so a card has a
// Snapshot only once RecordIteration has been called for it.
func (r *Recorder) RecordIteration(cardID, platform string, deltaTokens int64, deltaCostUSD float64, deltaTime time.Duration) {
	r.mu.Lock()
	snap := r.snapshots[cardID]
	snap.CardID = cardID
	snap.Platform = platform
	snap.TotalTokens += deltaTokens
	snap.TotalCostUSD += deltaCostUSD
	snap.TotalDuration += deltaTime
	snap.Iterations++
	snap.LastUpdated = time.Now()
	r.snapshots[cardID] = snap
	r.mu.Unlock()

	iterationsTotal.WithLabelValues(platform).Inc()
	tokensTotal.WithLabelValues(platform).Add(float64(deltaTokens))
	costTotal.WithLabelValues(platform).Add(deltaCostUSD)
	cardCostUSD.WithLabelValues(cardID).Set(snap.TotalCostUSD)
	cardTokens.WithLabelValues(cardID).Set(float64(snap.TotalTokens))
	cardIterations.WithLabelValues(cardID).Set(float64(snap.Iterations))
	cardDurationSeconds.WithLabelValues(cardID).Set(snap.TotalDuration.Seconds())
}

// RecordForCard re-publishes cardID's current Snapshot into the
// Prometheus gauges. It satisfies executor.Metrics, called by the
// RecordMetrics action (spec.md §4.7) at BuildSuccess/Verifying
// transitions — a flush of whatever RecordIteration has folded in, not a
// fresh computation; for a card with no Snapshot it does nothing.
func (r *Recorder) RecordForCard(cardID string) {
	r.mu.Lock()
	snap, ok := r.snapshots[cardID]
	r.mu.Unlock()
	if !ok {
		return
	}
	cardCostUSD.WithLabelValues(cardID).Set(snap.TotalCostUSD)
	cardTokens.WithLabelValues(cardID).Set(float64(snap.TotalTokens))
	cardIterations.WithLabelValues(cardID).Set(float64(snap.Iterations))
	cardDurationSeconds.WithLabelValues(cardID).Set(snap.TotalDuration.Seconds())
}

// Snapshot returns a copy of cardID's current rollup, or the zero value
// and false if nothing has been recorded for it yet.
func (r *Recorder) Snapshot(cardID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[cardID]
	return snap, ok
}

// Forget drops cardID's in-memory Snapshot. The housekeeping sweep calls
// it for every Archived card; the Snapshot is not persisted anywhere first.
func (r *Recorder) Forget(cardID string) {
	r.mu.Lock()
	delete(r.snapshots, cardID)
	r.mu.Unlock()
}
