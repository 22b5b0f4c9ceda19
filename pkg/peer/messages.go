package peer

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Due to the limitation of Go, we're using the `interface{}` to be able to use switch the actual
// type of the message on runtime. The underlying types do not necessary need to be structures.
type MessageContent = interface{}

// Basic information about a remote track.
type TrackInfo struct {
	TrackID  string
	StreamID string
	Kind     webrtc.RTPCodecType
	Codec    webrtc.RTPCodecCapability
	SSRC     webrtc.SSRC
}

type RemoteTrackPublished struct {
	TrackInfo
}

type RemoteTrackEnded struct {
	TrackInfo
}

// Sent for the first packet of a remote track and then at most once per
// `rtpReportInterval`.
type RTPPacketsReceived struct {
	TrackInfo
	// Packets received on the track so far.
	Packets uint64
	// Header of the latest packet.
	Last rtp.Header
}

type NewICECandidate struct {
	Candidate webrtc.ICECandidateInit
}

type ICEGatheringComplete struct{}

type ConnectionStateChanged struct {
	State webrtc.PeerConnectionState
}
