package room

import (
	"fmt"
	"sync"
)

// Identifier the relay assigns to a connected endpoint.
type EndpointID string

// Connection state of an endpoint as seen by the relay.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	// Connected, but not in any room yet.
	StateIdle
	// Alone in a room.
	StateWaiting
	// Shares the room with a peer.
	StatePaired
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Read-only view of a connected endpoint.
type Endpoint struct {
	ID    EndpointID
	Name  string
	Room  string
	State ConnectionState
}

type endpoint struct {
	id EndpointID

	// Innermost lock, nothing else is locked while it's held.
	mutex sync.Mutex
	name  string
	room  *room
	state ConnectionState
	// Disconnected, must not join anymore.
	gone bool
}

func (e *endpoint) currentRoom() *room {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.room
}

// Puts the endpoint into the room. Fails if it is in a room already or disconnected.
func (e *endpoint) enter(rm *room, name string, state ConnectionState) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	switch {
	case e.gone:
		return ErrUnknownEndpoint
	case e.room != nil:
		return fmt.Errorf("%w: %s", ErrAlreadyInRoom, e.room.id)
	}

	e.name = name
	e.room = rm
	e.state = state
	return nil
}

func (e *endpoint) leave() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.room = nil
	e.state = StateIdle
}

func (e *endpoint) setState(state ConnectionState) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.state = state
}

func (e *endpoint) snapshot() Endpoint {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	view := Endpoint{ID: e.id, Name: e.name, State: e.state}
	if e.room != nil {
		view.Room = e.room.id
	}

	return view
}
