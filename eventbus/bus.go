// Package eventbus implements the Event Bus (C1): a non-blocking broadcast
// of domain events plus per-connection subscription bookkeeping for card
// and project subjects. Grounded on original_source/src/events/mod.rs's
// broadcast-channel-plus-two-RwLock design, translated to Go's channel
// idiom the way the teacher's system/events.Dispatcher fans work out to
// bounded worker queues.
package eventbus

import (
	"sync"

	"github.com/cardforge/cardforge/domain/event"
)

// defaultBufferSize is the per-subscriber bounded buffer. A slow subscriber
// that doesn't drain fast enough lags and misses events — lossy by design;
// subscribers are expected to recover state from persistence, per
// spec.md §4.1.
const defaultBufferSize = 1024

// Receiver is a lazy sequence of events for one subscriber.
type Receiver <-chan event.Event

// subscriber wraps the channel a publish fans into, plus a closed flag so
// publish never sends on a closed channel.
type subscriber struct {
	ch     chan event.Event
	mu     sync.Mutex
	closed bool
}

func (s *subscriber) send(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// Buffer full: drop for this subscriber (lossy by design).
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus is the Event Bus: publish is a non-blocking fan-out to every
// registered subscriber channel; subscription maps are guarded by
// independent RWMutexes for card and project subjects.
type Bus struct {
	subMu       sync.RWMutex
	subscribers map[*subscriber]struct{}

	cardMu    sync.RWMutex
	cardSubs  map[string]map[string]struct{} // card_id -> connection_id set

	projectMu   sync.RWMutex
	projectSubs map[string]map[string]struct{} // project_id -> connection_id set
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[*subscriber]struct{}),
		cardSubs:    make(map[string]map[string]struct{}),
		projectSubs: make(map[string]map[string]struct{}),
	}
}

// Publish broadcasts event e to every subscriber. It never blocks and never
// fails: an event is simply dropped for subscribers whose buffer is full.
// Delivery order to a given subscriber equals publication order because
// each subscriber channel is written to under its own lock, in the order
// Publish calls arrive.
func (b *Bus) Publish(e event.Event) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for s := range b.subscribers {
		s.send(e)
	}
}

// Subscribe registers a new receiver over every published event.
func (b *Bus) Subscribe() Receiver {
	s := &subscriber{ch: make(chan event.Event, defaultBufferSize)}
	b.subMu.Lock()
	b.subscribers[s] = struct{}{}
	b.subMu.Unlock()
	return s.ch
}

// Unsubscribe closes and removes a receiver previously returned by
// Subscribe. Callers that stop reading a Receiver without calling
// Unsubscribe simply leak a slowly-filling channel until process exit;
// long-lived connections should always pair Subscribe with Unsubscribe.
func (b *Bus) Unsubscribe(r Receiver) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for s := range b.subscribers {
		if Receiver(s.ch) == r {
			delete(b.subscribers, s)
			s.close()
			return
		}
	}
}

// SubscribeToCard registers connID's interest in cardID.
func (b *Bus) SubscribeToCard(connID, cardID string) {
	b.cardMu.Lock()
	defer b.cardMu.Unlock()
	set, ok := b.cardSubs[cardID]
	if !ok {
		set = make(map[string]struct{})
		b.cardSubs[cardID] = set
	}
	set[connID] = struct{}{}
}

// SubscribeToProject registers connID's interest in projectID.
func (b *Bus) SubscribeToProject(connID, projectID string) {
	b.projectMu.Lock()
	defer b.projectMu.Unlock()
	set, ok := b.projectSubs[projectID]
	if !ok {
		set = make(map[string]struct{})
		b.projectSubs[projectID] = set
	}
	set[connID] = struct{}{}
}

// UnsubscribeFromCard removes connID's interest in cardID.
func (b *Bus) UnsubscribeFromCard(connID, cardID string) {
	b.cardMu.Lock()
	defer b.cardMu.Unlock()
	if set, ok := b.cardSubs[cardID]; ok {
		delete(set, connID)
	}
}

// UnsubscribeFromProject removes connID's interest in projectID.
func (b *Bus) UnsubscribeFromProject(connID, projectID string) {
	b.projectMu.Lock()
	defer b.projectMu.Unlock()
	if set, ok := b.projectSubs[projectID]; ok {
		delete(set, connID)
	}
}

// IsSubscribedToCard is a membership probe.
func (b *Bus) IsSubscribedToCard(connID, cardID string) bool {
	b.cardMu.RLock()
	defer b.cardMu.RUnlock()
	set, ok := b.cardSubs[cardID]
	if !ok {
		return false
	}
	_, ok = set[connID]
	return ok
}

// IsSubscribedToProject is a membership probe.
func (b *Bus) IsSubscribedToProject(connID, projectID string) bool {
	b.projectMu.RLock()
	defer b.projectMu.RUnlock()
	set, ok := b.projectSubs[projectID]
	if !ok {
		return false
	}
	_, ok = set[connID]
	return ok
}

// RemoveConnection removes connID from every card and project subject,
// atomically per subject map. Locks are acquired in a fixed order (card,
// then project) to avoid lock-order inversion with any other multi-lock
// caller, per spec.md §5.
func (b *Bus) RemoveConnection(connID string) {
	b.cardMu.Lock()
	for _, set := range b.cardSubs {
		delete(set, connID)
	}
	b.cardMu.Unlock()

	b.projectMu.Lock()
	for _, set := range b.projectSubs {
		delete(set, connID)
	}
	b.projectMu.Unlock()
}
