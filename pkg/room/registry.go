package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/signaling"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
	"golang.org/x/exp/slices"
)

// A room never holds more than two endpoints.
const MaxOccupants = 2

var (
	ErrRoomFull          = errors.New("room is full")
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
	ErrAlreadyConnected  = errors.New("endpoint already connected")
	ErrAlreadyInRoom     = errors.New("endpoint already joined a room")
	ErrNotInRoom         = errors.New("endpoint is not in a room")
	ErrNotPaired         = errors.New("endpoint has no peer in the room")
	ErrWrongRecipient    = errors.New("recipient is not the peer of the sender")
	ErrNotRelayable      = errors.New("event can't be relayed")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Delivers envelopes to the connected endpoints. Must not block and must preserve the
// order of envelopes sent to the same endpoint. Sending to a gone endpoint is a no-op.
type Sender interface {
	Send(to EndpointID, env signaling.Envelope)
}

// Maps rooms to the endpoints connected to them, pairs endpoints that meet in the same room
// and relays signaling messages between them. The registry never interprets the messages.
//
// Locks are taken in the order registry, room, endpoint. The registry lock only guards the
// maps, so that operations on different rooms never wait for each other.
type Registry struct {
	sender Sender
	logger *logrus.Entry

	mutex     sync.RWMutex
	endpoints map[EndpointID]*endpoint
	rooms     map[string]*room
}

func NewRegistry(sender Sender, logger *logrus.Entry) *Registry {
	return &Registry{
		sender:    sender,
		logger:    logger,
		endpoints: make(map[EndpointID]*endpoint),
		rooms:     make(map[string]*room),
	}
}

// Registers a freshly connected endpoint.
func (r *Registry) Connect(id EndpointID) error {
	if id == "" {
		return ErrInvalidIdentifier
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, found := r.endpoints[id]; found {
		return ErrAlreadyConnected
	}

	r.endpoints[id] = &endpoint{id: id, state: StateIdle}
	r.logger.WithField("endpoint", id).Debug("endpoint connected")
	return nil
}

// Registers the endpoint under the given room. The first occupant waits, the second one is
// introduced to the first one (and vice versa). A third join is rejected without side effects.
func (r *Registry) Join(id EndpointID, name, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room", ErrInvalidIdentifier)
	}

	joiner := r.lookup(id)
	if joiner == nil {
		return ErrUnknownEndpoint
	}

	if current := joiner.currentRoom(); current != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInRoom, current.id)
	}

	for {
		rm := r.openRoom(roomID)

		joined, err := r.tryJoin(rm, joiner, name)
		if rm.closed.Load() {
			r.forget(rm)
		}

		// The last occupant left between the lookup and the join, the room is gone.
		if !joined && err == nil {
			continue
		}

		return err
	}
}

// Joins the given room unless it has been closed in the meantime.
func (r *Registry) tryJoin(rm *room, joiner *endpoint, name string) (bool, error) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if rm.closed.Load() {
		return false, nil
	}

	logger := rm.logger.WithFields(logrus.Fields{"endpoint": joiner.id, "name": name})

	if len(rm.occupants) >= MaxOccupants {
		logger.Warn("rejecting join, room is full")
		rm.telemetry.AddEvent("join rejected", telemetry.EndpointKey.String(string(joiner.id)))
		r.send(joiner.id, signaling.EventRoomFull, signaling.RoomFull{Room: rm.id})
		return false, fmt.Errorf("%w: %s", ErrRoomFull, rm.id)
	}

	state := StateWaiting
	if len(rm.occupants) == 1 {
		state = StatePaired
	}

	if err := joiner.enter(rm, name, state); err != nil {
		r.closeIfEmpty(rm)
		return false, err
	}

	rm.occupants = append(rm.occupants, joiner)
	rm.telemetry.AddEvent("joined", telemetry.EndpointKey.String(string(joiner.id)))

	r.send(joiner.id, signaling.EventRoomJoined, signaling.RoomJoined{ID: string(joiner.id), Room: rm.id})

	if state == StateWaiting {
		logger.Info("endpoint is waiting for a peer")
		return true, nil
	}

	existing := rm.occupants[0]
	existing.setState(StatePaired)
	existingName := existing.snapshot().Name

	r.send(existing.id, signaling.EventPeerJoined, signaling.PeerJoined{ID: string(joiner.id), Name: name})
	r.send(joiner.id, signaling.EventPeerJoined, signaling.PeerJoined{ID: string(existing.id), Name: existingName})

	logger.WithField("peer", existing.id).Info("endpoints paired")
	return true, nil
}

// Removes the endpoint from its room. The remaining peer (if any) is notified and waits again.
func (r *Registry) Leave(id EndpointID) error {
	ep := r.lookup(id)
	if ep == nil {
		return ErrUnknownEndpoint
	}

	return r.leave(ep)
}

// Forgets the endpoint altogether (the signaling channel is closed).
func (r *Registry) Disconnect(id EndpointID) {
	r.mutex.Lock()
	ep, found := r.endpoints[id]
	delete(r.endpoints, id)
	r.mutex.Unlock()

	if !found {
		return
	}

	ep.mutex.Lock()
	ep.gone = true
	ep.mutex.Unlock()

	if err := r.leave(ep); err != nil && !errors.Is(err, ErrNotInRoom) {
		r.logger.WithError(err).WithField("endpoint", id).Warn("failed to leave the room on disconnect")
	}

	ep.setState(StateDisconnected)
	r.logger.WithField("endpoint", id).Debug("endpoint disconnected")
}

// Forwards the payload verbatim to the other occupant of the sender's room, tagged with the sender.
func (r *Registry) Relay(from EndpointID, event string, payload json.RawMessage) error {
	if !signaling.Relayable(event) {
		return fmt.Errorf("%w: %s", ErrNotRelayable, event)
	}

	sender := r.lookup(from)
	if sender == nil {
		return ErrUnknownEndpoint
	}

	rm := sender.currentRoom()
	if rm == nil {
		return ErrNotInRoom
	}

	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	// The sender might have left between the lookup and now.
	if rm.closed.Load() || !slices.Contains(rm.occupants, sender) {
		return ErrNotInRoom
	}

	peer := rm.peerOf(sender)
	if peer == nil {
		return ErrNotPaired
	}

	var header signaling.Addressed
	if len(payload) != 0 {
		if err := json.Unmarshal(payload, &header); err == nil && header.To != "" && EndpointID(header.To) != peer.id {
			rm.logger.WithFields(logrus.Fields{
				"endpoint": from,
				"to":       header.To,
				"event":    event,
			}).Warn("dropping message addressed to someone who is not the peer")
			return ErrWrongRecipient
		}
	}

	r.sender.Send(peer.id, signaling.Envelope{
		Event: signaling.RelayedName(event),
		From:  string(from),
		Data:  payload,
	})

	return nil
}

// Returns the connection state of the endpoint.
func (r *Registry) State(id EndpointID) ConnectionState {
	if ep := r.lookup(id); ep != nil {
		return ep.snapshot().State
	}

	return StateDisconnected
}

// Returns the occupants of the room in the order they joined.
func (r *Registry) Occupants(roomID string) []Endpoint {
	r.mutex.RLock()
	rm, found := r.rooms[roomID]
	r.mutex.RUnlock()

	if !found {
		return nil
	}

	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	occupants := make([]Endpoint, 0, len(rm.occupants))
	for _, ep := range rm.occupants {
		occupants = append(occupants, ep.snapshot())
	}

	return occupants
}

// Returns the identifiers of all existing rooms, sorted.
func (r *Registry) Rooms() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id, rm := range r.rooms {
		if !rm.closed.Load() {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)
	return ids
}

func (r *Registry) lookup(id EndpointID) *endpoint {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.endpoints[id]
}

// Returns the room with the given id, creating it if there is none or if the previous one
// has just been closed.
func (r *Registry) openRoom(roomID string) *room {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rm, found := r.rooms[roomID]
	if !found || rm.closed.Load() {
		rm = newRoom(roomID, r.logger)
		r.rooms[roomID] = rm
	}

	return rm
}

// Closes a room nobody is in. Must be called with the room locked. The caller removes
// the closed room from the map once the room is unlocked.
func (r *Registry) closeIfEmpty(rm *room) bool {
	if len(rm.occupants) != 0 || rm.closed.Load() {
		return false
	}

	rm.closed.Store(true)
	rm.telemetry.End()
	return true
}

// Removes a closed room from the map unless it has been replaced already.
func (r *Registry) forget(rm *room) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
}

func (r *Registry) leave(ep *endpoint) error {
	rm := ep.currentRoom()
	if rm == nil {
		return ErrNotInRoom
	}

	err := r.leaveRoom(rm, ep)
	if rm.closed.Load() {
		r.forget(rm)
	}

	return err
}

func (r *Registry) leaveRoom(rm *room, ep *endpoint) error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	idx := slices.Index(rm.occupants, ep)
	if idx < 0 {
		return ErrNotInRoom
	}

	rm.occupants = slices.Delete(rm.occupants, idx, idx+1)
	ep.leave()
	rm.telemetry.AddEvent("left", telemetry.EndpointKey.String(string(ep.id)))

	logger := rm.logger.WithField("endpoint", ep.id)

	if r.closeIfEmpty(rm) {
		logger.Info("last endpoint left, room deleted")
		return nil
	}

	remaining := rm.occupants[0]
	remaining.setState(StateWaiting)
	r.send(remaining.id, signaling.EventPeerLeft, signaling.PeerLeft{ID: string(ep.id)})
	logger.WithField("peer", remaining.id).Info("endpoint left, peer is waiting again")

	return nil
}

func (r *Registry) send(to EndpointID, event string, payload any) {
	env, err := signaling.NewEnvelope(event, payload)
	if err != nil {
		r.logger.WithError(err).WithField("event", event).Error("failed to encode a registry event")
		return
	}

	r.sender.Send(to, env)
}

type room struct {
	id        string
	mutex     sync.Mutex
	occupants []*endpoint
	// Closed rooms are never joined again, a new room takes their place.
	closed    atomic.Bool
	logger    *logrus.Entry
	telemetry *telemetry.Telemetry
}

func newRoom(id string, logger *logrus.Entry) *room {
	return &room{
		id:        id,
		occupants: make([]*endpoint, 0, MaxOccupants),
		logger:    logger.WithField("room", id),
		telemetry: telemetry.NewTelemetry(context.Background(), "room", telemetry.RoomKey.String(id)),
	}
}

func (r *room) peerOf(ep *endpoint) *endpoint {
	for _, occupant := range r.occupants {
		if occupant != ep {
			return occupant
		}
	}

	return nil
}
