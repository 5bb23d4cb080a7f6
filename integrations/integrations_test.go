package integrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge/domain/card"
)

func TestMonitorBuildReturnsNilUntilWebhookFires(t *testing.T) {
	m := NewManual()
	c := &card.WithFlags{Card: card.Card{ID: "card-1"}}

	trigger, err := m.MonitorBuild(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, trigger)

	m.Webhook("card-1", card.TriggerBuildSucceeded)
	trigger, err = m.MonitorBuild(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, trigger)
	assert.Equal(t, card.TriggerBuildSucceeded, *trigger)

	// Delivered exactly once.
	trigger, err = m.MonitorBuild(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, trigger)
}

func TestCollectErrorContextReturnsWebhookedError(t *testing.T) {
	m := NewManual()
	c := &card.WithFlags{Card: card.Card{ID: "card-1"}}

	cardErr, err := m.CollectErrorContext(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, cardErr)

	m.WebhookError("card-1", &card.CardError{ID: "err-1", CardID: "card-1", Category: card.ErrorCategoryBuild})
	cardErr, err = m.CollectErrorContext(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, cardErr)
	assert.Equal(t, "err-1", cardErr.ID)
}

func TestWebhooksAreScopedPerCard(t *testing.T) {
	m := NewManual()
	m.Webhook("card-1", card.TriggerBuildSucceeded)

	other := &card.WithFlags{Card: card.Card{ID: "card-2"}}
	trigger, err := m.MonitorBuild(context.Background(), other)
	require.NoError(t, err)
	assert.Nil(t, trigger)
}
