package call_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/call"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/peer"
)

var (
	errWrongState   = errors.New("operation not allowed in the current state")
	errCantReplace  = errors.New("replacing is not supported")
	errUnknownTrack = errors.New("unknown track")
)

type sentTrack struct {
	id   string
	kind media.Kind
}

// A transport without any media. The descriptions list the ids and kinds of the sent
// tracks, so that applying a remote description tells which remote tracks exist.
// Notifications are delivered in order from a separate goroutine, like pion does.
type fakeTransport struct {
	sink        *common.SinkWithSender[call.Generation, peer.MessageContent]
	failReplace bool
	wake        chan struct{}

	mutex       sync.Mutex
	state       webrtc.SignalingState
	senders     []sentTrack
	remote      map[string]media.Kind
	candidates  int
	calls       []string
	closed      bool
	gathered    bool
	established bool
	outbox      []peer.MessageContent
	// Blocks `AddICECandidate` while set.
	gate chan struct{}
}

func (f *fakeTransport) emit(message peer.MessageContent) {
	if f.closed {
		return
	}

	f.outbox = append(f.outbox, message)
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *fakeTransport) deliver() {
	for range f.wake {
		f.mutex.Lock()
		pending := f.outbox
		f.outbox = nil
		f.mutex.Unlock()

		for _, message := range pending {
			_ = f.sink.Send(message)
		}
	}
}

// Makes `AddICECandidate` block until the returned function is called.
func (f *fakeTransport) hold() func() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	gate := make(chan struct{})
	f.gate = gate

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mutex.Lock()
			f.gate = nil
			f.mutex.Unlock()
			close(gate)
		})
	}
}

func (f *fakeTransport) record(op string) {
	f.calls = append(f.calls, op)
}

func (f *fakeTransport) describe(sdpType webrtc.SDPType) webrtc.SessionDescription {
	parts := make([]string, 0, len(f.senders))
	for _, sender := range f.senders {
		parts = append(parts, fmt.Sprintf("%s=%s", sender.id, sender.kind))
	}

	return webrtc.SessionDescription{Type: sdpType, SDP: strings.Join(parts, ",")}
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("CreateOffer")
	return f.describe(webrtc.SDPTypeOffer), nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("CreateAnswer")
	if f.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errWrongState
	}

	return f.describe(webrtc.SDPTypeAnswer), nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("SetLocalDescription")

	switch {
	case desc.Type == webrtc.SDPTypeOffer && f.state == webrtc.SignalingStateStable:
		f.state = webrtc.SignalingStateHaveLocalOffer
	case desc.Type == webrtc.SDPTypeAnswer && f.state == webrtc.SignalingStateHaveRemoteOffer:
		f.state = webrtc.SignalingStateStable
		f.connected()
	default:
		return errWrongState
	}

	if !f.gathered {
		f.gathered = true
		f.emit(peer.NewICECandidate{Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host"}})
		f.emit(peer.ICEGatheringComplete{})
	}

	return nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("SetRemoteDescription")

	switch {
	case desc.Type == webrtc.SDPTypeOffer && f.state == webrtc.SignalingStateStable:
		f.state = webrtc.SignalingStateHaveRemoteOffer
	case desc.Type == webrtc.SDPTypeAnswer && f.state == webrtc.SignalingStateHaveLocalOffer:
		f.state = webrtc.SignalingStateStable
		f.connected()
	default:
		return errWrongState
	}

	f.applyRemote(desc.SDP)
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("Rollback")
	if f.state != webrtc.SignalingStateHaveLocalOffer && f.state != webrtc.SignalingStateHaveRemoteOffer {
		return errWrongState
	}

	f.state = webrtc.SignalingStateStable
	return nil
}

func (f *fakeTransport) AddICECandidate(webrtc.ICECandidateInit) error {
	f.mutex.Lock()
	f.record("AddICECandidate")
	gate := f.gate
	f.mutex.Unlock()

	if gate != nil {
		<-gate
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.candidates++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("Close")
	f.sink.Seal()
	if !f.closed {
		f.closed = true
		close(f.wake)
	}
	return nil
}

func (f *fakeTransport) AddTrack(track media.Track) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("AddTrack")
	f.senders = append(f.senders, sentTrack{track.ID(), track.Kind()})
	return nil
}

func (f *fakeTransport) RemoveTrack(trackID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("RemoveTrack")
	for i, sender := range f.senders {
		if sender.id == trackID {
			f.senders = append(f.senders[:i], f.senders[i+1:]...)
			return nil
		}
	}

	return errUnknownTrack
}

func (f *fakeTransport) ReplaceTrack(oldTrackID string, track media.Track) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.record("ReplaceTrack")
	if f.failReplace {
		return errCantReplace
	}

	for i, sender := range f.senders {
		if sender.id == oldTrackID {
			f.senders[i] = sentTrack{track.ID(), track.Kind()}
			return nil
		}
	}

	return errUnknownTrack
}

func (f *fakeTransport) connected() {
	if !f.established {
		f.established = true
		f.emit(peer.ConnectionStateChanged{State: webrtc.PeerConnectionStateConnected})
	}
}

// Reports the remote tracks that appeared or went away with the description.
func (f *fakeTransport) applyRemote(sdp string) {
	current := make(map[string]media.Kind)
	for _, part := range strings.Split(sdp, ",") {
		if id, kind, found := strings.Cut(part, "="); found {
			current[id] = media.Kind(kind)
		}
	}

	for id, kind := range f.remote {
		if _, found := current[id]; !found {
			f.emit(peer.RemoteTrackEnded{TrackInfo: trackInfo(id, kind)})
		}
	}

	for id, kind := range current {
		if _, found := f.remote[id]; !found {
			f.emit(peer.RemoteTrackPublished{TrackInfo: trackInfo(id, kind)})
		}
	}

	f.remote = current
}

func (f *fakeTransport) called(op string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	count := 0
	for _, recorded := range f.calls {
		if recorded == op {
			count++
		}
	}

	return count
}

func (f *fakeTransport) candidatesAdded() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.candidates
}

func (f *fakeTransport) isClosed() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.closed
}

func trackInfo(id string, kind media.Kind) peer.TrackInfo {
	info := peer.TrackInfo{
		TrackID:  id,
		StreamID: "tandem",
		Kind:     webrtc.RTPCodecTypeVideo,
		Codec:    webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
	}

	if kind == media.KindAudio {
		info.Kind = webrtc.RTPCodecTypeAudio
		info.Codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}

	return info
}

// Creates fake transports and keeps them for inspection.
type fakeTransports struct {
	mutex       sync.Mutex
	created     []*fakeTransport
	failReplace bool
}

func (t *fakeTransports) create(
	sink *common.SinkWithSender[call.Generation, peer.MessageContent],
	_ *logrus.Entry,
) (call.Transport, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	transport := &fakeTransport{
		sink:        sink,
		failReplace: t.failReplace,
		state:       webrtc.SignalingStateStable,
		remote:      make(map[string]media.Kind),
		wake:        make(chan struct{}, 1),
	}
	t.created = append(t.created, transport)
	go transport.deliver()

	return transport, nil
}

func (t *fakeTransports) last() *fakeTransport {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if len(t.created) == 0 {
		return nil
	}

	return t.created[len(t.created)-1]
}

func (t *fakeTransports) count() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return len(t.created)
}
