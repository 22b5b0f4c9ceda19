package peer

import (
	"errors"
	"io"
	"time"

	"github.com/pion/webrtc/v3"
)

const rtpReportInterval = time.Second

func trackInfoFromTrack(track *webrtc.TrackRemote) TrackInfo {
	return TrackInfo{
		TrackID:  track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind(),
		Codec:    track.Codec().RTPCodecCapability,
		SSRC:     track.SSRC(),
	}
}

// A callback that is called once we receive first RTP packets from a track, i.e.
// we call this function each time a new track is received.
func (p *Peer[ID]) onRtpTrackReceived(remoteTrack *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	trackInfo := trackInfoFromTrack(remoteTrack)
	logger := p.logger.WithField("track", trackInfo.TrackID)

	_ = p.sink.Send(RemoteTrackPublished{trackInfo})

	// A new video source (e.g. a screen share) is unusable until the next key frame.
	if trackInfo.Kind == webrtc.RTPCodecTypeVideo {
		if err := p.RequestKeyFrame(trackInfo.SSRC); err != nil {
			logger.WithError(err).Warn("failed to request a key frame")
		}
	}

	go func() {
		defer func() {
			_ = p.sink.Send(RemoteTrackEnded{trackInfo})
		}()

		var (
			received   uint64
			lastReport time.Time
		)

		for {
			packet, _, readErr := remoteTrack.ReadRTP()
			if readErr != nil {
				if errors.Is(readErr, io.EOF) { // finished, no more data, no error, inform others
					logger.Info("remote track closed")
				} else { // finished, no more data, but with error, inform others
					logger.WithError(readErr).Warn("failed to read from remote track")
				}
				return
			}

			received++
			if now := time.Now(); now.Sub(lastReport) >= rtpReportInterval {
				lastReport = now
				// Reports are skipped while the receiver is busy.
				_ = p.sink.Send(RTPPacketsReceived{trackInfo, received, packet.Header})
			}
		}
	}()
}

// A callback that is called once we receive an ICE candidate for this peer connection.
func (p *Peer[ID]) onICECandidateGathered(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		p.logger.Debug("ICE candidate gathering finished")
		_ = p.sink.Send(ICEGatheringComplete{})
		return
	}

	p.logger.WithField("candidate", candidate).Debug("ICE candidate gathered")
	_ = p.sink.Send(NewICECandidate{Candidate: candidate.ToJSON()})
}

// Offers are driven by the negotiation session whenever the track set changes.
func (p *Peer[ID]) onNegotiationNeeded() {
	p.logger.Debug("negotiation needed")
}

func (p *Peer[ID]) onICEConnectionStateChanged(state webrtc.ICEConnectionState) {
	p.logger.Debugf("ICE connection state changed: %v", state)
}

func (p *Peer[ID]) onICEGatheringStateChanged(state webrtc.ICEGathererState) {
	p.logger.Debugf("ICE gathering state changed: %v", state)
}

func (p *Peer[ID]) onSignalingStateChanged(state webrtc.SignalingState) {
	p.logger.Debugf("signaling state changed: %v", state)
}

func (p *Peer[ID]) onConnectionStateChanged(state webrtc.PeerConnectionState) {
	p.logger.Infof("connection state changed: %v", state)
	_ = p.sink.Send(ConnectionStateChanged{state})
}
