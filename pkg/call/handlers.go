package call

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/peer"
	"github.com/tandem-rtc/tandem/pkg/room"
	"github.com/tandem-rtc/tandem/pkg/signaling"
)

func (c *Controller) handleSignaling(env signaling.Envelope) {
	logger := c.logger.WithFields(logrus.Fields{"event": env.Event, "from": env.From})

	switch env.Event {
	case signaling.EventRoomJoined:
		var joined signaling.RoomJoined
		if err := env.Decode(&joined); err != nil {
			logger.WithError(err).Warn("malformed message")
			return
		}

		c.self = joined.ID
		c.logger = c.logger.WithField("endpoint", joined.ID)
		if c.roomState == RoomJoining {
			c.roomState = RoomWaiting
		}
		c.resolveJoin(nil)
		logger.Info("joined the room")

	case signaling.EventRoomFull:
		c.roomState = RoomIdle
		c.resolveJoin(fmt.Errorf("%w: %s", room.ErrRoomFull, c.options.Room))
		logger.Warn("the room is full")

	case signaling.EventPeerJoined:
		var joined signaling.PeerJoined
		if err := env.Decode(&joined); err != nil {
			logger.WithError(err).Warn("malformed message")
			return
		}

		c.peerID = joined.ID
		c.peerName = joined.Name
		c.roomState = RoomPaired
		logger.WithFields(logrus.Fields{"peer": joined.ID, "name": joined.Name}).Info("peer joined the room")

	case signaling.EventPeerLeft:
		var left signaling.PeerLeft
		if err := env.Decode(&left); err != nil || left.ID != c.peerID {
			logger.Warn("unexpected peer left, ignoring")
			return
		}

		c.endCall(false)
		c.peerID = ""
		c.peerName = ""
		c.roomState = RoomWaiting
		logger.Info("peer left the room")

	default:
		c.handleRelayed(env, logger)
	}
}

// Handles the messages the peer sent to us through the relay.
func (c *Controller) handleRelayed(env signaling.Envelope, logger *logrus.Entry) {
	if env.From == "" || env.From != c.peerID {
		logger.Warn("message from someone who is not our peer, ignoring")
		return
	}

	switch env.Event {
	case signaling.EventCallIncoming:
		var offer signaling.Offer
		if err := env.Decode(&offer); err != nil {
			logger.WithError(err).Warn("malformed message")
			return
		}

		if offer.Name != "" {
			c.peerName = offer.Name
		}

		// Both sides called at the same time, the session resolves it.
		if c.session != nil {
			_ = c.session.HandleOffer(offer.Offer, true)
			return
		}

		c.acceptIncomingCall(offer.Offer)

	case signaling.EventNegoOffer:
		var offer signaling.Offer
		if err := env.Decode(&offer); err != nil {
			logger.WithError(err).Warn("malformed message")
			return
		}

		if c.session == nil {
			logger.Warn("renegotiation outside of a call, ignoring")
			return
		}

		_ = c.session.HandleOffer(offer.Offer, false)

	case signaling.EventCallAnswer, signaling.EventNegoFinal:
		var answer signaling.Answer
		if err := env.Decode(&answer); err != nil {
			logger.WithError(err).Warn("malformed message")
			return
		}

		if c.session == nil {
			logger.Warn("answer outside of a call, ignoring")
			return
		}

		_ = c.session.HandleAnswer(answer.Ans)

	case signaling.EventICECandidate:
		var candidate signaling.ICECandidate
		if err := env.Decode(&candidate); err != nil {
			logger.WithError(err).Warn("malformed message")
			return
		}

		if c.session == nil {
			logger.Debug("candidate outside of a call, ignoring")
			return
		}

		_ = c.session.HandleRemoteCandidate(candidate.Candidate)

	case signaling.EventCallHangup:
		if c.session == nil {
			return
		}

		c.endCall(false)
		c.options.Renderer.Failure(ErrHungUp)
		logger.Info("peer hung up")
	}
}

// Starts a session for the incoming call right away, so that early candidates are
// buffered by it, and answers once the local media is there.
func (c *Controller) acceptIncomingCall(offer signaling.Description) {
	if err := c.startSession(); err != nil {
		c.options.Renderer.Failure(err)
		return
	}

	missing := c.missingMedia()
	if len(missing) == 0 {
		_ = c.session.HandleOffer(offer, true)
		return
	}

	generation := c.generation
	go func() {
		tracks, err := c.options.Acquirer.Acquire(c.ctx, missing...)
		c.post(mediaReady{generation: generation, offer: offer, tracks: tracks, err: err})
	}()
}

func (c *Controller) handleIncomingMedia(ready mediaReady) {
	if ready.generation != c.generation || c.session == nil {
		for _, track := range ready.tracks {
			track.Stop()
		}
		return
	}

	if ready.err != nil {
		c.logger.WithError(ready.err).Error("can't answer the call without local media")
		c.endCall(true)
		c.options.Renderer.Failure(ready.err)
		return
	}

	c.addLocalTracks(ready.tracks)
	_ = c.session.HandleOffer(ready.offer, true)
}

func (c *Controller) handlePeer(message common.Message[Generation, peer.MessageContent]) {
	// Leftovers of an older session.
	if message.Sender != c.generation || c.session == nil {
		return
	}

	switch msg := message.Content.(type) {
	case peer.NewICECandidate:
		_ = c.session.HandleLocalCandidate(msg.Candidate)

	case peer.ICEGatheringComplete:
		c.logger.Debug("ICE gathering complete")

	case peer.ConnectionStateChanged:
		c.connection = msg.State
		c.logger.WithField("state", msg.State).Debug("connection state changed")

	case peer.RemoteTrackPublished:
		track := &RemoteTrack{
			ID:       msg.TrackID,
			StreamID: msg.StreamID,
			Kind:     msg.Kind,
			Codec:    msg.Codec.MimeType,
		}
		c.remoteTracks[msg.TrackID] = track
		c.options.Renderer.RenderRemote(*track)

	case peer.RemoteTrackEnded:
		if track, found := c.remoteTracks[msg.TrackID]; found {
			delete(c.remoteTracks, msg.TrackID)
			c.options.Renderer.RemoteGone(*track)
		}

	case peer.RTPPacketsReceived:
		if track, found := c.remoteTracks[msg.TrackID]; found {
			track.Packets = msg.Packets
			track.LastSequence = msg.Last.SequenceNumber
		}

	default:
		c.logger.Warnf("unknown message from the transport: %T", msg)
	}
}

func (c *Controller) handleDisconnected(err error) {
	c.logger.WithError(err).Error("signaling channel is down")

	c.endCall(false)
	c.roomState = RoomDisconnected
	c.peerID = ""
	c.peerName = ""
	c.resolveJoin(signaling.ErrSignalingUnavailable)
	c.options.Renderer.Failure(fmt.Errorf("%w: %v", signaling.ErrSignalingUnavailable, err))
}

func (c *Controller) resolveJoin(err error) {
	if c.pendingJoin != nil {
		c.pendingJoin <- err
		c.pendingJoin = nil
	}
}

// Kinds of the default media that the track set lacks.
func (c *Controller) missingMedia() []media.Kind {
	missing := []media.Kind{}
	for _, kind := range c.options.Config.Media {
		switch {
		case kind == media.KindAudio && c.tracks.Audio() == nil:
			missing = append(missing, kind)
		case kind == media.KindVideo && c.tracks.Video() == nil:
			missing = append(missing, kind)
		}
	}

	return missing
}

// Adds freshly acquired tracks to the track set and to the transport.
func (c *Controller) addLocalTracks(tracks []media.Track) {
	for _, track := range tracks {
		if _, err := c.adoptLocalTrack(track); err != nil {
			c.logger.WithError(err).Error("failed to send a local track")
		}
	}

	c.options.Renderer.RenderLocal(c.tracks.Tracks())
}

// Puts an acquired track in place and sends it. A camera that arrives while the screen
// is shared is held until the sharing stops. Duplicates are stopped.
func (c *Controller) adoptLocalTrack(track media.Track) (media.Change, error) {
	if track.Kind() == media.KindVideo && c.screen != nil {
		if c.camera != nil {
			track.Stop()
			return media.ChangeNone, nil
		}

		c.camera = track
		c.logger.Debug("holding the camera while the screen is shared")
		return media.ChangeNone, nil
	}

	_, change := c.tracks.Add(track)
	if change == media.ChangeNone {
		track.Stop()
		return change, nil
	}

	if c.transport == nil {
		return change, nil
	}

	return change, c.transport.AddTrack(track)
}
