// Package wsfanout is an optional adapter that mounts the Event Bus (C1)
// onto a websocket feed: every connection registered through Serve gets
// every event published on the underlying Bus, JSON-encoded, until a write
// to it fails. A connection that lags is not dropped; it misses the events
// the Bus drops for a full subscriber buffer. Grounded on the teacher's pkg/api.WSHub
// (register/unregister/broadcast over a client set guarded by one mutex),
// adapted to drive off eventbus.Bus's existing Subscribe/Unsubscribe
// instead of its own broadcast channel.
//
// spec.md §1 puts transport (routing, auth, HTTP mounting) out of scope —
// this package is only the fan-out seam: it expects an already-upgraded
// *websocket.Conn and does not itself run an HTTP server or router.
package wsfanout

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cardforge/cardforge/eventbus"
	"github.com/cardforge/cardforge/internal/obslog"
)

// Bus is the subset of *eventbus.Bus the fan-out needs.
type Bus interface {
	Subscribe() eventbus.Receiver
	Unsubscribe(r eventbus.Receiver)
}

// Fanout relays a Bus's events to every registered websocket connection.
type Fanout struct {
	bus Bus
	log *obslog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a Fanout over bus. log may be nil.
func New(bus Bus, log *obslog.Logger) *Fanout {
	if log == nil {
		log = obslog.Noop()
	}
	return &Fanout{
		bus:   bus,
		log:   log,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Serve registers conn and blocks, writing every bus event to it as JSON
// until a write to the connection fails. Callers run Serve in its
// own goroutine per connection, the way the teacher's HandleWS does.
func (f *Fanout) Serve(conn *websocket.Conn) {
	receiver := f.bus.Subscribe()
	defer f.bus.Unsubscribe(receiver)

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.mu.Unlock()
	defer f.removeConn(conn)

	for e := range receiver {
		if err := conn.WriteJSON(e); err != nil {
			f.log.WithError(err).Warn("wsfanout: write failed, dropping connection")
			return
		}
	}
}

func (f *Fanout) removeConn(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.conns, conn)
	f.mu.Unlock()
	conn.Close()
}

// ConnCount reports how many connections are currently registered.
func (f *Fanout) ConnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}
