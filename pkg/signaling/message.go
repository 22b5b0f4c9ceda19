package signaling

import (
	"encoding/json"
	"fmt"
)

// Names of the events exchanged over the signaling channel.
const (
	// Endpoint asks the relay to join a room.
	EventJoinRoom = "room:join"
	// Relay confirms the join and tells the endpoint its own identifier.
	EventRoomJoined = "room:joined"
	// Relay rejects the join since the room already has two occupants.
	EventRoomFull = "room:full"
	// Relay introduces the other occupant of the room.
	EventPeerJoined = "peer-joined"
	// Relay informs that the other occupant is gone.
	EventPeerLeft = "peer-left"

	// Initial offer of a call (endpoint -> relay).
	EventCallOffer = "call:offer"
	// Initial offer of a call (relay -> endpoint).
	EventCallIncoming = "call:incoming"
	// Answer to the initial offer.
	EventCallAnswer = "call:answer"
	// Offer of a renegotiation round.
	EventNegoOffer = "nego:offer"
	// Answer of a renegotiation round (endpoint -> relay).
	EventNegoAnswer = "nego:answer"
	// Answer of a renegotiation round (relay -> endpoint).
	EventNegoFinal = "nego:final"
	// A single trickled ICE candidate.
	EventICECandidate = "ice:candidate"
	// The call is over.
	EventCallHangup = "call:hangup"
)

// RelayedName returns the name under which the relay delivers an event to the peer.
func RelayedName(event string) string {
	switch event {
	case EventCallOffer:
		return EventCallIncoming
	case EventNegoAnswer:
		return EventNegoFinal
	default:
		return event
	}
}

// Relayable reports whether the event is forwarded verbatim to the other occupant of the room.
func Relayable(event string) bool {
	switch event {
	case EventCallOffer, EventCallAnswer, EventNegoOffer, EventNegoAnswer, EventICECandidate, EventCallHangup:
		return true
	default:
		return false
	}
}

// A single message on the wire. The payload is kept as raw JSON, so that the relay never
// has to interpret (or even decode) the signaling payloads it forwards.
type Envelope struct {
	Event string `json:"event"`
	// Sender of the message, stamped by the relay.
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Creates an envelope for the given event, encoding the payload as JSON.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}

	if raw, ok := payload.(json.RawMessage); ok {
		return Envelope{Event: event, Data: raw}, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	return Envelope{Event: event, Data: data}, nil
}

// Decodes the payload of the envelope into `v`.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: %w", e.Event, ErrEmptyPayload)
	}

	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Event, err)
	}

	return nil
}

// Session description blob. Opaque to the relay.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICE candidate in the shape browsers use for `RTCIceCandidateInit`.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type JoinRoom struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

type RoomJoined struct {
	ID   string `json:"id"`
	Room string `json:"room"`
}

type RoomFull struct {
	Room string `json:"room"`
}

type PeerJoined struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PeerLeft struct {
	ID string `json:"id"`
}

// Payload of `call:offer`, `call:incoming` and `nego:offer`.
type Offer struct {
	To    string      `json:"to,omitempty"`
	Offer Description `json:"offer"`
	Name  string      `json:"name,omitempty"`
}

// Payload of `call:answer`, `nego:answer` and `nego:final`.
type Answer struct {
	To  string      `json:"to,omitempty"`
	Ans Description `json:"ans"`
}

type ICECandidate struct {
	To        string    `json:"to,omitempty"`
	Candidate Candidate `json:"candidate"`
}

type Hangup struct {
	To string `json:"to,omitempty"`
}

// The only part of a relayed payload the relay looks at.
type Addressed struct {
	To string `json:"to"`
}
