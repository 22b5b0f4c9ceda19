package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	videoFrameDuration = time.Second / 30
)

// Produces generated tracks instead of capturing real devices. Used by the headless
// peer and by tests. Kinds listed in `Denied` or `Unavailable` fail to be acquired.
type SyntheticAcquirer struct {
	// Don't generate any media, the tracks stay silent.
	Silent      bool
	Denied      []Kind
	Unavailable []Kind

	mutex  sync.Mutex
	issued []*SyntheticTrack
}

func (a *SyntheticAcquirer) Acquire(ctx context.Context, kinds ...Kind) ([]Track, error) {
	tracks := make([]Track, 0, len(kinds))

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			stopAll(tracks)
			return nil, acquisitionError(kind, err)
		}

		if err := a.check(kind); err != nil {
			stopAll(tracks)
			return nil, acquisitionError(kind, err)
		}

		track, err := NewSyntheticTrack(kind, !a.Silent)
		if err != nil {
			stopAll(tracks)
			return nil, acquisitionError(kind, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
		}

		a.mutex.Lock()
		a.issued = append(a.issued, track)
		a.mutex.Unlock()

		tracks = append(tracks, track)
	}

	return tracks, nil
}

// Returns all tracks acquired so far.
func (a *SyntheticAcquirer) Issued() []*SyntheticTrack {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return append([]*SyntheticTrack(nil), a.issued...)
}

func (a *SyntheticAcquirer) check(kind Kind) error {
	for _, denied := range a.Denied {
		if denied == kind {
			return ErrPermissionDenied
		}
	}

	for _, unavailable := range a.Unavailable {
		if unavailable == kind {
			return ErrDeviceUnavailable
		}
	}

	return nil
}

// A track that carries generated samples: silence for audio, a constant frame for video.
type SyntheticTrack struct {
	*trackState

	local *webrtc.TrackLocalStaticSample
	stop  chan struct{}
	done  chan struct{}
}

func NewSyntheticTrack(kind Kind, generate bool) (*SyntheticTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == KindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}

	id := fmt.Sprintf("%s-%s", kind, uuid.NewString())
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, "tandem")
	if err != nil {
		return nil, err
	}

	track := &SyntheticTrack{
		trackState: newTrackState(id, kind),
		local:      local,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if generate {
		go track.generate()
	} else {
		close(track.done)
	}

	return track, nil
}

func (t *SyntheticTrack) Local() webrtc.TrackLocal {
	return t.local
}

func (t *SyntheticTrack) Stop() {
	if t.end(false) {
		close(t.stop)
		<-t.done
	}
}

// Ends the track as if the source went away on its own.
func (t *SyntheticTrack) Revoke() {
	if t.end(true) {
		close(t.stop)
		<-t.done
	}
}

func (t *SyntheticTrack) generate() {
	defer close(t.done)

	duration := videoFrameDuration
	payload := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x01, 0x00, 0x01, 0x00}
	if t.kind == KindAudio {
		duration = audioFrameDuration
		// Opus frame of silence.
		payload = []byte{0xf8, 0xff, 0xfe}
	}

	ticker := time.NewTicker(duration)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			// Disabled tracks keep their media section but carry nothing.
			if !t.Enabled() {
				continue
			}

			// Fails only if the track is not bound yet.
			_ = t.local.WriteSample(pionmedia.Sample{Data: payload, Duration: duration})
		}
	}
}
