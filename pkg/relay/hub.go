package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/room"
	"github.com/tandem-rtc/tandem/pkg/signaling"
)

// Something that delivers envelopes to a connected endpoint without blocking.
type Outbound interface {
	Deliver(env signaling.Envelope) error
}

// Routes messages between connected endpoints and the room registry. Transport agnostic:
// both the WebSocket server and in-process pipes attach their endpoints here.
type Hub struct {
	registry *room.Registry
	logger   *logrus.Entry

	mutex     sync.RWMutex
	endpoints map[room.EndpointID]Outbound
}

func NewHub(logger *logrus.Entry) *Hub {
	hub := &Hub{
		logger:    logger,
		endpoints: make(map[room.EndpointID]Outbound),
	}
	hub.registry = room.NewRegistry(hub, logger)

	return hub
}

func (h *Hub) Registry() *room.Registry {
	return h.registry
}

// Registers a freshly connected endpoint.
func (h *Hub) Attach(id room.EndpointID, out Outbound) error {
	if err := h.registry.Connect(id); err != nil {
		return err
	}

	h.mutex.Lock()
	h.endpoints[id] = out
	h.mutex.Unlock()

	return nil
}

// Forgets the endpoint, its peer (if any) is told that it left.
func (h *Hub) Detach(id room.EndpointID) {
	h.mutex.Lock()
	delete(h.endpoints, id)
	h.mutex.Unlock()

	h.registry.Disconnect(id)
}

// Handles a message received from the given endpoint. Messages from the same endpoint
// must be handed over in the order they were received.
func (h *Hub) Handle(from room.EndpointID, env signaling.Envelope) {
	logger := h.logger.WithFields(logrus.Fields{"endpoint": from, "event": env.Event})

	if env.Event == signaling.EventJoinRoom {
		var join signaling.JoinRoom
		if err := env.Decode(&join); err != nil {
			logger.WithError(err).Warn("malformed join request")
			return
		}

		// A full room has already been reported to the endpoint.
		if err := h.registry.Join(from, join.Name, join.Room); err != nil && !errors.Is(err, room.ErrRoomFull) {
			logger.WithError(err).Warn("failed to join a room")
		}

		return
	}

	if !signaling.Relayable(env.Event) {
		logger.Warn("unknown event, ignoring")
		return
	}

	switch err := h.registry.Relay(from, env.Event, env.Data); {
	case err == nil:
	case errors.Is(err, room.ErrNotPaired), errors.Is(err, room.ErrNotInRoom):
		logger.WithError(err).Debug("nobody to relay the message to, dropping it")
	default:
		logger.WithError(err).Warn("failed to relay a message")
	}
}

// Implements `room.Sender`.
func (h *Hub) Send(to room.EndpointID, env signaling.Envelope) {
	h.mutex.RLock()
	out, found := h.endpoints[to]
	h.mutex.RUnlock()

	if !found {
		return
	}

	if err := out.Deliver(env); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"endpoint": to,
			"event":    env.Event,
		}).Warn("failed to deliver a message")
	}
}

// An endpoint living in the same process as the hub.
type LocalEndpoint struct {
	*signaling.Pipe

	ID  room.EndpointID
	hub *Hub
}

// Connects an in-process endpoint to the hub.
func (h *Hub) ConnectLocal() (*LocalEndpoint, error) {
	id := room.EndpointID(uuid.NewString())

	local := &LocalEndpoint{ID: id, hub: h}
	local.Pipe = signaling.NewPipe(func(env signaling.Envelope) {
		h.Handle(id, env)
	})

	if err := h.Attach(id, local.Pipe); err != nil {
		local.Pipe.Disconnect(err)
		return nil, err
	}

	return local, nil
}

// Disconnects the endpoint from the hub as if its connection dropped.
func (l *LocalEndpoint) Close() {
	l.hub.Detach(l.ID)
	l.Pipe.Disconnect(signaling.ErrSignalingUnavailable)
}
