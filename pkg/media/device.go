//go:build capture

package media

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v3"
)

// Captures camera, microphone and screen through the native drivers.
type DeviceAcquirer struct {
	selector *mediadevices.CodecSelector
}

func NewDeviceAcquirer() (*DeviceAcquirer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("failed to create VP8 encoder params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("failed to create Opus encoder params: %w", err)
	}

	return &DeviceAcquirer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// Registers the codecs of the encoders, so that the peer connection can negotiate them.
func (a *DeviceAcquirer) Populate(mediaEngine *webrtc.MediaEngine) {
	a.selector.Populate(mediaEngine)
}

func (a *DeviceAcquirer) Acquire(ctx context.Context, kinds ...Kind) ([]Track, error) {
	tracks := make([]Track, 0, len(kinds))

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			stopAll(tracks)
			return nil, acquisitionError(kind, err)
		}

		track, err := a.acquire(kind)
		if err != nil {
			stopAll(tracks)
			return nil, acquisitionError(kind, err)
		}

		tracks = append(tracks, track)
	}

	return tracks, nil
}

func (a *DeviceAcquirer) acquire(kind Kind) (Track, error) {
	var (
		stream mediadevices.MediaStream
		err    error
	)

	switch kind {
	case KindAudio:
		stream, err = mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Audio: func(*mediadevices.MediaTrackConstraints) {},
			Codec: a.selector,
		})
	case KindVideo:
		stream, err = mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				c.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420, frame.FormatI444, frame.FormatRGBA}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			},
			Codec: a.selector,
		})
	case KindScreen:
		stream, err = mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
			Video: func(*mediadevices.MediaTrackConstraints) {},
			Codec: a.selector,
		})
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrDeviceUnavailable, kind)
	}

	if err != nil {
		return nil, classify(err)
	}

	captured := stream.GetTracks()
	if len(captured) == 0 {
		return nil, ErrDeviceUnavailable
	}

	for _, extra := range captured[1:] {
		_ = extra.Close()
	}

	return newDeviceTrack(kind, captured[0]), nil
}

// Native drivers don't distinguish a missing device from a busy one.
func classify(err error) error {
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// Track backed by a native capture device.
type deviceTrack struct {
	*trackState

	track mediadevices.Track
}

func newDeviceTrack(kind Kind, track mediadevices.Track) *deviceTrack {
	wrapped := &deviceTrack{
		trackState: newTrackState(track.ID(), kind),
		track:      track,
	}

	// The driver reports the end of the source (e.g. the screen capture was revoked).
	track.OnEnded(func(error) {
		wrapped.end(true)
	})

	return wrapped
}

func (t *deviceTrack) Local() webrtc.TrackLocal {
	return t.track
}

func (t *deviceTrack) Stop() {
	if t.end(false) {
		_ = t.track.Close()
	}
}
