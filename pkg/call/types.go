package call

import (
	"errors"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/negotiation"
	"github.com/tandem-rtc/tandem/pkg/peer"
	"github.com/tandem-rtc/tandem/pkg/signaling"
)

var (
	ErrClosed          = errors.New("call controller is closed")
	ErrNotJoined       = errors.New("not in a room")
	ErrAlreadyJoined   = errors.New("already joined a room")
	ErrNotPaired       = errors.New("nobody else is in the room")
	ErrNotInCall       = errors.New("not in a call")
	ErrAlreadyInCall   = errors.New("already in a call")
	ErrAlreadySharing  = errors.New("screen is already shared")
	ErrNotSharing      = errors.New("screen is not shared")
	ErrHungUp          = errors.New("the peer hung up")
	ErrNoLocalTrack    = errors.New("no local track of this kind")
	ErrTrackExists     = errors.New("local track of this kind already exists")
	ErrUnsupportedKind = errors.New("unsupported track kind")
)

// Identifies a call session. Anything reported by the transport of an older session is dropped.
type Generation uint64

// The peer connection of a call session.
type Transport interface {
	negotiation.Transport
	AddTrack(track media.Track) error
	RemoveTrack(trackID string) error
	// Swaps the media of an outgoing track in place, without touching the media sections.
	ReplaceTrack(oldTrackID string, track media.Track) error
}

// Creates the transport of a new call session. The transport reports to the sink.
type TransportFactory func(
	sink *common.SinkWithSender[Generation, peer.MessageContent],
	logger *logrus.Entry,
) (Transport, error)

// Creates WebRTC peer connections.
func PeerTransports(factory *peer.Factory) TransportFactory {
	return func(sink *common.SinkWithSender[Generation, peer.MessageContent], logger *logrus.Entry) (Transport, error) {
		p, err := peer.NewPeer(factory, sink, logger)
		if err != nil {
			return nil, err
		}

		return p, nil
	}
}

// Presents the media of the call to the user.
type Renderer interface {
	RenderLocal(tracks []media.Track)
	RenderRemote(track RemoteTrack)
	RemoteGone(track RemoteTrack)
	// Failures that happened outside of a user action, e.g. the signaling went down.
	Failure(err error)
}

type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Codec    string
	// Packets received so far and the sequence number of the latest one, updated about
	// once per second.
	Packets      uint64
	LastSequence uint16
}

type Options struct {
	// Display name announced to the peer.
	Name string
	// Room to join.
	Room string

	Channel    signaling.Channel
	Acquirer   media.Acquirer
	Transports TransportFactory
	Renderer   Renderer
	Config     Config
	Logger     *logrus.Entry
}

// Status of the room and of the call.
type Snapshot struct {
	Self      string
	Room      string
	RoomState RoomState
	PeerID    string
	PeerName  string

	InCall      bool
	Role        negotiation.Role
	Negotiation negotiation.SignalingState
	Stats       negotiation.Stats
	Connection  webrtc.PeerConnectionState

	LocalTracks  []media.Kind
	Muted        bool
	VideoEnabled bool
	Sharing      bool
	RemoteTracks []RemoteTrack
}

type RoomState int

const (
	RoomIdle RoomState = iota
	RoomJoining
	RoomWaiting
	RoomPaired
	RoomDisconnected
)

func (s RoomState) String() string {
	switch s {
	case RoomIdle:
		return "idle"
	case RoomJoining:
		return "joining"
	case RoomWaiting:
		return "waiting"
	case RoomPaired:
		return "paired"
	case RoomDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
