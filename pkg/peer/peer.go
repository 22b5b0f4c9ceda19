package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
)

var (
	ErrCantCreatePeerConnection = errors.New("can't create peer connection")
	ErrNothingToRollBack        = errors.New("no pending local offer to roll back")
	ErrUnknownTrack             = errors.New("track is not sent to the peer")
	ErrCantReplaceTrack         = errors.New("can't replace track")
)

// A wrapped representation of the peer connection (the remote side of the call).
// The peer gets information about the things happening outside via public methods
// and informs the outside world about the things happening inside the peer by posting
// the messages to the sink.
type Peer[ID comparable] struct {
	logger         *logrus.Entry
	peerConnection *webrtc.PeerConnection
	sink           *common.SinkWithSender[ID, MessageContent]

	mutex   sync.Mutex
	senders map[string]*webrtc.RTPSender
}

func newPeer[ID comparable](
	peerConnection *webrtc.PeerConnection,
	sink *common.SinkWithSender[ID, MessageContent],
	logger *logrus.Entry,
) *Peer[ID] {
	peer := &Peer[ID]{
		logger:         logger,
		peerConnection: peerConnection,
		sink:           sink,
		senders:        make(map[string]*webrtc.RTPSender),
	}

	peerConnection.OnTrack(peer.onRtpTrackReceived)
	peerConnection.OnICECandidate(peer.onICECandidateGathered)
	peerConnection.OnNegotiationNeeded(peer.onNegotiationNeeded)
	peerConnection.OnICEConnectionStateChange(peer.onICEConnectionStateChanged)
	peerConnection.OnICEGatheringStateChange(peer.onICEGatheringStateChanged)
	peerConnection.OnConnectionStateChange(peer.onConnectionStateChanged)
	peerConnection.OnSignalingStateChange(peer.onSignalingStateChanged)

	return peer
}

func (p *Peer[ID]) CreateOffer() (webrtc.SessionDescription, error) {
	return p.peerConnection.CreateOffer(nil)
}

func (p *Peer[ID]) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.peerConnection.CreateAnswer(nil)
}

func (p *Peer[ID]) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.peerConnection.SetLocalDescription(desc)
}

func (p *Peer[ID]) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.peerConnection.SetRemoteDescription(desc)
}

// Discards the pending offer, local or remote.
func (p *Peer[ID]) Rollback() error {
	// The description must still be parseable, so the discarded offer is handed back.
	switch p.peerConnection.SignalingState() {
	case webrtc.SignalingStateHaveLocalOffer:
		if pending := p.peerConnection.PendingLocalDescription(); pending != nil {
			return p.peerConnection.SetLocalDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeRollback,
				SDP:  pending.SDP,
			})
		}
	case webrtc.SignalingStateHaveRemoteOffer:
		if pending := p.peerConnection.PendingRemoteDescription(); pending != nil {
			return p.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeRollback,
				SDP:  pending.SDP,
			})
		}
	}

	return ErrNothingToRollBack
}

func (p *Peer[ID]) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.peerConnection.AddICECandidate(candidate)
}

// Closes peer connection. From this moment on, no new messages will be sent from the peer.
func (p *Peer[ID]) Close() error {
	// We want to seal the sink since the owner is not interested in us anymore.
	p.sink.Seal()

	if err := p.peerConnection.Close(); err != nil {
		p.logger.WithError(err).Error("failed to close peer connection")
		return err
	}

	return nil
}

// Starts sending the track to the remote peer. Takes effect after the next negotiation.
func (p *Peer[ID]) AddTrack(track media.Track) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, found := p.senders[track.ID()]; found {
		return nil
	}

	sender, err := p.peerConnection.AddTrack(track.Local())
	if err != nil {
		p.logger.WithError(err).Error("failed to add track")
		return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
	}

	p.senders[track.ID()] = sender
	go p.drainRTCP(sender)

	return nil
}

// Stops sending the track. Takes effect after the next negotiation.
func (p *Peer[ID]) RemoveTrack(trackID string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	sender, found := p.senders[trackID]
	if !found {
		return ErrUnknownTrack
	}

	delete(p.senders, trackID)

	if err := p.peerConnection.RemoveTrack(sender); err != nil {
		p.logger.WithError(err).Error("failed to remove track")
		return fmt.Errorf("failed to remove track %s: %w", trackID, err)
	}

	return nil
}

// Swaps the media of an outgoing track in place, the media section stays as it was.
func (p *Peer[ID]) ReplaceTrack(oldTrackID string, track media.Track) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	sender, found := p.senders[oldTrackID]
	if !found {
		return ErrUnknownTrack
	}

	if err := sender.ReplaceTrack(track.Local()); err != nil {
		p.logger.WithError(err).Warn("failed to replace track")
		return fmt.Errorf("%w: %v", ErrCantReplaceTrack, err)
	}

	delete(p.senders, oldTrackID)
	p.senders[track.ID()] = sender

	return nil
}

// Asks the remote peer to send a key frame for the given track.
func (p *Peer[ID]) RequestKeyFrame(ssrc webrtc.SSRC) error {
	return p.peerConnection.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)},
	})
}

func (p *Peer[ID]) SignalingState() webrtc.SignalingState {
	return p.peerConnection.SignalingState()
}

func (p *Peer[ID]) ConnectionState() webrtc.PeerConnectionState {
	return p.peerConnection.ConnectionState()
}

// Incoming RTCP packets must be read for the interceptors (NACK, reports) to work.
func (p *Peer[ID]) drainRTCP(sender *webrtc.RTPSender) {
	buffer := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buffer); err != nil {
			return
		}
	}
}
