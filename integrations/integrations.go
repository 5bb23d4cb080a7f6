// Package integrations provides the boundary implementation of
// executor.Integrations for standalone operation. spec.md §1 places real
// CI, GitOps, container-registry, and cluster-status wiring out of scope
// ("specified only as the data the core reads/writes about them"), so
// this package does not talk to any actual build or deploy system — it
// records that a trigger/monitor call happened and otherwise waits for an
// operator-supplied trigger to arrive through Webhook, the same
// external-event-to-trigger seam the teacher's services/automation
// exposes to its own webhook listeners (automation_webhooks.go's
// evaluator entry point). A deployment wiring a real CI/GitOps/cluster
// API replaces this package with one that calls out instead of waiting.
package integrations

import (
	"context"
	"sync"

	"github.com/cardforge/cardforge/domain/card"
)

// Manual is an executor.Integrations implementation that never talks to
// an external system directly: TriggerBuild/TriggerDeploy just record
// that the action fired, and MonitorBuild/MonitorArgoCD/RunHealthChecks
// return whatever trigger was last pushed in via Webhook for that card,
// clearing it after it is consumed (each observed trigger is delivered
// exactly once, like a real poller's state transition would be).
type Manual struct {
	mu      sync.Mutex
	pending map[string]card.Trigger
	errCtx  map[string]*card.CardError
}

// NewManual builds an empty Manual integrations boundary.
func NewManual() *Manual {
	return &Manual{
		pending: make(map[string]card.Trigger),
		errCtx:  make(map[string]*card.CardError),
	}
}

// Webhook records trigger as the next synthetic trigger MonitorBuild,
// MonitorArgoCD, or RunHealthChecks should report for cardID — the call
// an operator-supplied CI/GitOps/cluster-status webhook handler makes
// once it has translated its own payload into one of the state machine's
// system triggers.
func (m *Manual) Webhook(cardID string, trigger card.Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[cardID] = trigger
}

// WebhookError attaches the CardError CollectErrorContext should report
// for cardID the next time it is called.
func (m *Manual) WebhookError(cardID string, cardErr *card.CardError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errCtx[cardID] = cardErr
}

func (m *Manual) take(cardID string) (card.Trigger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.pending[cardID]
	if ok {
		delete(m.pending, cardID)
	}
	return t, ok
}

func (m *Manual) TriggerBuild(ctx context.Context, c *card.WithFlags) error { return nil }

func (m *Manual) MonitorBuild(ctx context.Context, c *card.WithFlags) (*card.Trigger, error) {
	if t, ok := m.take(c.ID); ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Manual) TriggerDeploy(ctx context.Context, c *card.WithFlags) error { return nil }

func (m *Manual) MonitorArgoCD(ctx context.Context, c *card.WithFlags) (*card.Trigger, error) {
	if t, ok := m.take(c.ID); ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Manual) RunHealthChecks(ctx context.Context, c *card.WithFlags) (*card.Trigger, error) {
	if t, ok := m.take(c.ID); ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Manual) CollectErrorContext(ctx context.Context, c *card.WithFlags) (*card.CardError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.errCtx[c.ID]
	if !ok {
		return nil, nil
	}
	delete(m.errCtx, c.ID)
	return e, nil
}
