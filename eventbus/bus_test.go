package eventbus

import (
	"testing"
	"time"

	"github.com/cardforge/cardforge/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, r Receiver) event.Event {
	t.Helper()
	select {
	case e := <-r:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	r := bus.Subscribe()

	bus.Publish(event.NewCardCreated("card-1", "project-1"))

	e := recv(t, r)
	assert.Equal(t, event.TypeCardCreated, e.Type)
	assert.Equal(t, "card-1", e.CardID)
	assert.Equal(t, "project-1", e.ProjectID)
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := New()
	r1 := bus.Subscribe()
	r2 := bus.Subscribe()

	bus.Publish(event.NewLoopStarted("card-1"))

	e1 := recv(t, r1)
	e2 := recv(t, r2)
	assert.Equal(t, event.TypeLoopStarted, e1.Type)
	assert.Equal(t, event.TypeLoopStarted, e2.Type)
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := New()
	done := make(chan struct{})
	go func() {
		bus.Publish(event.NewLoopStarted("card-1"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestSlowSubscriberLagsInsteadOfBlockingPublish(t *testing.T) {
	bus := New()
	r := bus.Subscribe()

	for i := 0; i < defaultBufferSize+10; i++ {
		bus.Publish(event.NewLoopStarted("card-1"))
	}

	require.Len(t, r, defaultBufferSize)
}

func TestCardSubscription(t *testing.T) {
	bus := New()

	bus.SubscribeToCard("conn-1", "card-1")
	assert.True(t, bus.IsSubscribedToCard("conn-1", "card-1"))
	assert.False(t, bus.IsSubscribedToCard("conn-1", "card-2"))
	assert.False(t, bus.IsSubscribedToCard("conn-2", "card-1"))

	bus.UnsubscribeFromCard("conn-1", "card-1")
	assert.False(t, bus.IsSubscribedToCard("conn-1", "card-1"))
}

func TestProjectSubscription(t *testing.T) {
	bus := New()

	bus.SubscribeToProject("conn-1", "project-1")
	assert.True(t, bus.IsSubscribedToProject("conn-1", "project-1"))

	bus.UnsubscribeFromProject("conn-1", "project-1")
	assert.False(t, bus.IsSubscribedToProject("conn-1", "project-1"))
}

func TestRemoveConnection(t *testing.T) {
	bus := New()

	bus.SubscribeToCard("conn-1", "card-1")
	bus.SubscribeToCard("conn-1", "card-2")
	bus.SubscribeToProject("conn-1", "project-1")
	bus.SubscribeToCard("conn-2", "card-1")

	bus.RemoveConnection("conn-1")

	assert.False(t, bus.IsSubscribedToCard("conn-1", "card-1"))
	assert.False(t, bus.IsSubscribedToCard("conn-1", "card-2"))
	assert.False(t, bus.IsSubscribedToProject("conn-1", "project-1"))
	// conn-2's subscription is untouched.
	assert.True(t, bus.IsSubscribedToCard("conn-2", "card-1"))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	r := bus.Subscribe()

	bus.Unsubscribe(r)
	bus.Publish(event.NewLoopStarted("card-1"))

	_, ok := <-r
	assert.False(t, ok, "receiver channel should be closed after Unsubscribe")
}
