package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mailwire/mailwire/protocol"
)

// --------------------------------------------------------------------------------
// Events

// Event names an observable client event.
type Event string

const (
	EventConnected    Event = "connected"
	EventDisconnected Event = "disconnected"
	EventReconnecting Event = "reconnecting"
	EventError        Event = "error"
	EventData         Event = "data"
	EventUpdate       Event = "update"
	EventStateChange  Event = "stateChange"
)

// ListenerID identifies a registered listener so it can be removed again.
type ListenerID string

// Handler signatures per event.
type (
	// ConnectedHandler runs after the transport is established.
	ConnectedHandler func()
	// DisconnectedHandler runs when the connection goes down, with the
	// close code and the server- or client-supplied reason.
	DisconnectedHandler func(code int, reason string)
	// ReconnectingHandler runs before each reconnect attempt with the
	// 1-based attempt number and the backoff delay about to be waited.
	ReconnectingHandler func(attempt uint, delay time.Duration)
	// ErrorHandler runs for errors with no addressable pending request.
	ErrorHandler func(err error)
	// MessageHandler runs for every data or update frame on a channel,
	// regardless of whether a pending request consumed it as a response.
	MessageHandler func(channel string, msg *protocol.ServerMessage)
	// StateChangeHandler runs on every connection state transition.
	StateChangeHandler func(old, new State)
)

// --------------------------------------------------------------------------------
// Registry

// listener pairs a registration id with its callback.
type listener struct {
	id ListenerID
	fn any
}

// emitter is an explicit per-client callback registry. Listeners fire in
// registration order; emitting with no listeners is a no-op. Each client
// owns its own emitter, there is no global bus.
type emitter struct {
	mu       sync.Mutex
	handlers map[Event][]listener
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[Event][]listener)}
}

// add registers fn for ev and returns its removal id.
func (e *emitter) add(ev Event, fn any) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := ListenerID(uuid.NewString())
	e.handlers[ev] = append(e.handlers[ev], listener{id: id, fn: fn})

	return id
}

// remove deletes the listener with the given id. It reports whether a
// listener was found.
func (e *emitter) remove(id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ev, ls := range e.handlers {
		for i, l := range ls {
			if l.id == id {
				e.handlers[ev] = append(ls[:i:i], ls[i+1:]...)

				return true
			}
		}
	}

	return false
}

// removeAll clears the given events, or every event when none are named.
func (e *emitter) removeAll(events ...Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(events) == 0 {
		e.handlers = make(map[Event][]listener)

		return
	}

	for _, ev := range events {
		delete(e.handlers, ev)
	}
}

// listeners returns a snapshot of the callbacks for ev in registration
// order, so emission never runs under the registry lock.
func (e *emitter) listeners(ev Event) []any {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.handlers[ev]
	if len(ls) == 0 {
		return nil
	}

	fns := make([]any, len(ls))
	for i, l := range ls {
		fns[i] = l.fn
	}

	return fns
}
