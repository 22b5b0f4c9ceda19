package signaling

import (
	"errors"
	"sync"
)

var (
	// The signaling channel is down. Surfaced to the user, the negotiation session is torn down.
	ErrSignalingUnavailable = errors.New("signaling unavailable")
	// Local side of the channel has already been closed.
	ErrChannelClosed = errors.New("signaling channel closed")
	ErrEmptyPayload  = errors.New("empty payload")
)

// Bidirectional, ordered transport between one endpoint and the relay.
type Channel interface {
	// Sends an event to the relay. Fire-and-forget: it never reports whether the message
	// reached the remote peer; a gone peer is silently a no-op.
	Send(event string, payload any) error
	// Registers a handler for the given event. Handlers are called one at a time in
	// arrival order. Must be bound before the channel is started.
	OnEvent(event string, handler func(Envelope))
	// Registers a handler that is called exactly once when the channel goes down.
	OnDisconnect(handler func(error))
}

// Keeps the handlers bound to a channel and dispatches incoming envelopes to them.
type dispatcher struct {
	mutex        sync.RWMutex
	handlers     map[string][]func(Envelope)
	onDisconnect []func(error)
	disconnected bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string][]func(Envelope))}
}

func (d *dispatcher) OnEvent(event string, handler func(Envelope)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.handlers[event] = append(d.handlers[event], handler)
}

func (d *dispatcher) OnDisconnect(handler func(error)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onDisconnect = append(d.onDisconnect, handler)
}

// Returns `false` if nobody is interested in the event.
func (d *dispatcher) dispatch(env Envelope) bool {
	d.mutex.RLock()
	handlers := d.handlers[env.Event]
	d.mutex.RUnlock()

	for _, handler := range handlers {
		handler(env)
	}

	return len(handlers) != 0
}

func (d *dispatcher) disconnect(err error) {
	d.mutex.Lock()
	if d.disconnected {
		d.mutex.Unlock()
		return
	}
	d.disconnected = true
	handlers := d.onDisconnect
	d.mutex.Unlock()

	for _, handler := range handlers {
		handler(err)
	}
}
