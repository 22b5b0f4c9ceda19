package call

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/signaling"
)

// Joins the room given in the options and waits for the relay to confirm it.
// Returns `room.ErrRoomFull` if the room already has two occupants.
func (c *Controller) Join(ctx context.Context) error {
	var result chan error

	err := c.exec(ctx, func() error {
		switch c.roomState {
		case RoomIdle:
		case RoomDisconnected:
			return signaling.ErrSignalingUnavailable
		default:
			return ErrAlreadyJoined
		}

		join := signaling.JoinRoom{Name: c.options.Name, Room: c.options.Room}
		if err := c.channel.Send(signaling.EventJoinRoom, join); err != nil {
			return err
		}

		c.roomState = RoomJoining
		result = make(chan error, 1)
		c.pendingJoin = result
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loop.Done():
		return ErrClosed
	}
}

// Calls the other occupant of the room: acquires the default media and sends the offer.
func (c *Controller) Call(ctx context.Context) error {
	var missing []media.Kind
	if err := c.exec(ctx, func() error {
		if err := c.canCall(); err != nil {
			return err
		}

		missing = c.missingMedia()
		return nil
	}); err != nil {
		return err
	}

	tracks, err := c.acquire(ctx, missing...)
	if err != nil {
		return err
	}

	return c.execOrRelease(ctx, tracks, func() error {
		if err := c.canCall(); err != nil {
			return err
		}

		c.addLocalTracks(tracks)

		if err := c.startSession(); err != nil {
			return err
		}

		if err := c.session.Start(); err != nil {
			c.endCall(false)
			return err
		}

		return nil
	})
}

// Ends the call. Local media is released and the peer is told about it.
func (c *Controller) HangUp() error {
	return c.exec(c.ctx, func() error {
		if c.session == nil {
			return ErrNotInCall
		}

		c.endCall(true)
		return nil
	})
}

// Flips the microphone and returns whether it's muted now. Never renegotiates.
func (c *Controller) ToggleMute() (bool, error) {
	var muted bool
	err := c.exec(c.ctx, func() error {
		if c.tracks.Audio() == nil {
			return fmt.Errorf("%w: %s", ErrNoLocalTrack, media.KindAudio)
		}

		muted = c.tracks.Enabled(media.KindAudio)
		c.tracks.SetEnabled(media.KindAudio, !muted)
		c.logger.WithField("muted", muted).Debug("microphone toggled")
		return nil
	})

	return muted, err
}

// Flips the camera and returns whether it's enabled now. Never renegotiates.
func (c *Controller) ToggleVideo() (bool, error) {
	var enabled bool
	err := c.exec(c.ctx, func() error {
		camera := c.cameraTrack()
		if camera == nil {
			return fmt.Errorf("%w: %s", ErrNoLocalTrack, media.KindVideo)
		}

		enabled = !camera.Enabled()
		camera.SetEnabled(enabled)
		c.logger.WithField("enabled", enabled).Debug("camera toggled")
		return nil
	})

	return enabled, err
}

// Adds a local audio or camera track. Renegotiates if the call is up.
func (c *Controller) AddTrack(ctx context.Context, kind media.Kind) error {
	check := func() error {
		switch kind {
		case media.KindAudio:
		case media.KindVideo:
			if c.cameraTrack() != nil {
				return fmt.Errorf("%w: %s", ErrTrackExists, kind)
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
		}

		return c.checkSignaling()
	}

	if err := c.exec(ctx, check); err != nil {
		return err
	}

	tracks, err := c.acquire(ctx, kind)
	if err != nil {
		return err
	}

	return c.execOrRelease(ctx, tracks, func() error {
		if err := check(); err != nil {
			return err
		}

		change := media.ChangeNone
		for _, track := range tracks {
			added, err := c.adoptLocalTrack(track)
			if err != nil {
				return err
			}

			if added != media.ChangeNone {
				change = added
			}
		}

		c.options.Renderer.RenderLocal(c.tracks.Tracks())
		return c.renegotiateOn(change)
	})
}

// Stops and removes the local track of the given kind. Renegotiates if the call is up.
func (c *Controller) RemoveTrack(kind media.Kind) error {
	return c.exec(c.ctx, func() error {
		var track media.Track
		switch kind {
		case media.KindAudio:
			track = c.tracks.Audio()
		case media.KindVideo:
			// The held camera is not sent while the screen is shared.
			if c.camera != nil {
				c.camera.Stop()
				c.camera = nil
				return nil
			}
			track = c.cameraTrack()
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
		}

		if track == nil {
			return fmt.Errorf("%w: %s", ErrNoLocalTrack, kind)
		}

		_, change := c.tracks.Remove(track.ID())
		track.Stop()

		if c.transport != nil {
			if err := c.transport.RemoveTrack(track.ID()); err != nil {
				return err
			}
		}

		c.options.Renderer.RenderLocal(c.tracks.Tracks())
		return c.renegotiateOn(change)
	})
}

// Shares the screen in place of the camera.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	check := func() error {
		if err := c.checkSignaling(); err != nil {
			return err
		}

		if c.session == nil {
			return ErrNotInCall
		}

		if c.screen != nil {
			return ErrAlreadySharing
		}

		return nil
	}

	if err := c.exec(ctx, check); err != nil {
		return err
	}

	tracks, err := c.acquire(ctx, media.KindScreen)
	if err != nil {
		return err
	}

	return c.execOrRelease(ctx, tracks, func() error {
		if err := check(); err != nil {
			return err
		}

		return c.startSharing(tracks[0])
	})
}

// Stops sharing the screen and brings the camera back.
func (c *Controller) StopScreenShare() error {
	return c.exec(c.ctx, func() error {
		if c.screen == nil {
			return ErrNotSharing
		}

		return c.stopSharing()
	})
}

func (c *Controller) canCall() error {
	if err := c.checkSignaling(); err != nil {
		return err
	}

	switch {
	case c.roomState == RoomIdle || c.roomState == RoomJoining:
		return ErrNotJoined
	case c.roomState != RoomPaired:
		return ErrNotPaired
	case c.session != nil:
		return ErrAlreadyInCall
	}

	return nil
}

func (c *Controller) checkSignaling() error {
	if c.roomState == RoomDisconnected {
		return signaling.ErrSignalingUnavailable
	}

	return nil
}

// Acquires the media outside of the loop, so that a slow device doesn't block the call.
func (c *Controller) acquire(ctx context.Context, kinds ...media.Kind) ([]media.Track, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	tracks, err := c.options.Acquirer.Acquire(ctx, kinds...)
	if err != nil {
		c.logger.WithError(err).WithField("kinds", kinds).Error("failed to acquire local media")
		return nil, err
	}

	return tracks, nil
}

// Runs `fn` on the loop. The tracks are released if `fn` didn't take them.
func (c *Controller) execOrRelease(ctx context.Context, tracks []media.Track, fn func() error) error {
	const (
		pending int32 = iota
		taken
		abandoned
	)

	var state atomic.Int32
	err := c.exec(ctx, func() error {
		if !state.CompareAndSwap(pending, taken) {
			stopTracks(tracks)
			return ctx.Err()
		}

		if err := fn(); err != nil {
			for _, track := range tracks {
				if !c.owns(track) {
					track.Stop()
				}
			}
			return err
		}
		return nil
	})

	if state.CompareAndSwap(pending, abandoned) {
		stopTracks(tracks)
	}

	return err
}

// Reports whether the track is one of the local tracks of the controller.
func (c *Controller) owns(track media.Track) bool {
	for _, owned := range c.tracks.Tracks() {
		if owned.ID() == track.ID() {
			return true
		}
	}

	return c.camera != nil && c.camera.ID() == track.ID()
}

// The camera track, wherever it currently is.
func (c *Controller) cameraTrack() media.Track {
	if c.camera != nil {
		return c.camera
	}

	if video := c.tracks.Video(); video != nil && video.Kind() == media.KindVideo {
		return video
	}

	return nil
}

func stopTracks(tracks []media.Track) {
	for _, track := range tracks {
		track.Stop()
	}
}
