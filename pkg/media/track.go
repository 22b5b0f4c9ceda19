package media

import (
	"sync"

	"github.com/pion/webrtc/v3"
)

// Kind of a local track. Screen is a video track with a different origin.
type Kind string

const (
	KindAudio  Kind = "audio"
	KindVideo  Kind = "video"
	KindScreen Kind = "screen"
)

// Reports whether tracks of this kind occupy the outgoing video slot.
func (k Kind) IsVisual() bool {
	return k == KindVideo || k == KindScreen
}

// A single local media track.
type Track interface {
	ID() string
	Kind() Kind
	// A disabled track stays negotiated, it just carries silence or black frames.
	Enabled() bool
	SetEnabled(enabled bool)
	// Registers a callback that is called once the track ends on its own
	// (e.g. the user revokes screen sharing from the OS), but not on `Stop`.
	OnEnded(callback func())
	Ended() bool
	// Releases the underlying source. Idempotent.
	Stop()
	// The track that is handed to the peer connection.
	Local() webrtc.TrackLocal
}

// Bookkeeping shared by all track implementations.
type trackState struct {
	id   string
	kind Kind

	mutex   sync.Mutex
	enabled bool
	ended   bool
	onEnded []func()
}

func newTrackState(id string, kind Kind) *trackState {
	return &trackState{id: id, kind: kind, enabled: true}
}

func (t *trackState) ID() string {
	return t.id
}

func (t *trackState) Kind() Kind {
	return t.kind
}

func (t *trackState) Enabled() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.enabled
}

func (t *trackState) SetEnabled(enabled bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.enabled = enabled
}

func (t *trackState) OnEnded(callback func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.onEnded = append(t.onEnded, callback)
}

func (t *trackState) Ended() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.ended
}

// Marks the track as ended. Returns false if it has already ended.
// Callbacks are only notified when `notify` is set.
func (t *trackState) end(notify bool) bool {
	t.mutex.Lock()
	if t.ended {
		t.mutex.Unlock()
		return false
	}

	t.ended = true
	callbacks := t.onEnded
	t.onEnded = nil
	t.mutex.Unlock()

	if notify {
		for _, callback := range callbacks {
			callback()
		}
	}

	return true
}
