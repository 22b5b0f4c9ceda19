package call

import (
	"github.com/tandem-rtc/tandem/pkg/media"
)

// Puts the screen into the video slot. The camera is held, so it can come back
// once the sharing stops.
func (c *Controller) startSharing(screen media.Track) error {
	camera := c.tracks.Video()

	renegotiate, err := c.substitute(camera, screen)
	if err != nil {
		return err
	}

	c.tracks.Replace(media.KindVideo, screen)
	c.camera = camera
	c.screen = screen

	trackID := screen.ID()
	screen.OnEnded(func() {
		c.post(screenShareEnded{trackID})
	})

	c.telemetry.AddEvent("screen share started")
	c.logger.WithField("renegotiate", renegotiate).Info("screen share started")
	c.options.Renderer.RenderLocal(c.tracks.Tracks())

	if renegotiate && c.session != nil {
		return c.session.Renegotiate()
	}

	return nil
}

// Brings the held camera back (if there is one) and releases the screen.
func (c *Controller) stopSharing() error {
	screen, camera := c.screen, c.camera
	c.screen, c.camera = nil, nil

	renegotiate := true
	if camera != nil {
		var err error
		if renegotiate, err = c.substitute(screen, camera); err != nil {
			camera.Stop()
			c.tracks.Remove(screen.ID())
		} else {
			c.tracks.Replace(media.KindVideo, camera)
		}
	} else {
		if c.transport != nil {
			if err := c.transport.RemoveTrack(screen.ID()); err != nil {
				c.logger.WithError(err).Warn("failed to stop sending the screen")
			}
		}
		c.tracks.Remove(screen.ID())
	}

	screen.Stop()

	c.telemetry.AddEvent("screen share stopped")
	c.logger.WithField("renegotiate", renegotiate).Info("screen share stopped")
	c.options.Renderer.RenderLocal(c.tracks.Tracks())

	if renegotiate && c.session != nil {
		return c.session.Renegotiate()
	}

	return nil
}

func (c *Controller) handleScreenShareEnded(e screenShareEnded) {
	if c.screen == nil || c.screen.ID() != e.trackID {
		return
	}

	c.logger.Info("screen share ended by the source")
	if err := c.stopSharing(); err != nil {
		c.options.Renderer.Failure(err)
	}
}

// Makes the transport send `next` instead of `previous`. The sender is swapped in place
// when possible; otherwise the old sender is removed and a new one is added, which always
// needs a renegotiation. Returns whether a renegotiation is due.
func (c *Controller) substitute(previous, next media.Track) (bool, error) {
	if c.transport == nil {
		return false, nil
	}

	if previous == nil {
		return true, c.transport.AddTrack(next)
	}

	err := c.transport.ReplaceTrack(previous.ID(), next)
	if err == nil {
		return c.options.Config.RenegotiateOnReplace, nil
	}

	c.logger.WithError(err).Warn("can't replace the track in place, re-adding it")

	if err := c.transport.RemoveTrack(previous.ID()); err != nil {
		c.logger.WithError(err).Warn("failed to remove the replaced track")
	}

	if err := c.transport.AddTrack(next); err != nil {
		c.logger.WithError(err).Error("failed to add the substitute track")
		return true, err
	}

	return true, nil
}
