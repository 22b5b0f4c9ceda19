package negotiation_test

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/tandem-rtc/tandem/pkg/negotiation"
	"github.com/tandem-rtc/tandem/pkg/signaling"
)

var errWrongState = errors.New("operation not allowed in the current state")

// Mimics the signaling state machine of a peer connection without any media.
type fakeTransport struct {
	name    string
	offers  int
	state   negotiation.SignalingState
	closed  int
	failing map[string]error

	pendingLocal  *webrtc.SessionDescription
	pendingRemote *webrtc.SessionDescription
	currentLocal  *webrtc.SessionDescription
	currentRemote *webrtc.SessionDescription

	candidates []string
	calls      []string
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name, failing: make(map[string]error)}
}

func (f *fakeTransport) fail(op string) error {
	f.calls = append(f.calls, op)
	return f.failing[op]
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	if err := f.fail("CreateOffer"); err != nil {
		return webrtc.SessionDescription{}, err
	}

	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("%s-offer-%d", f.name, f.offers)}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	if err := f.fail("CreateAnswer"); err != nil {
		return webrtc.SessionDescription{}, err
	}

	if f.state != negotiation.StateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errWrongState
	}

	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: f.name + "-answer-to-" + f.pendingRemote.SDP}, nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	if err := f.fail("SetLocalDescription"); err != nil {
		return err
	}

	switch {
	case desc.Type == webrtc.SDPTypeOffer && f.state == negotiation.StateStable:
		f.pendingLocal = &desc
		f.state = negotiation.StateHaveLocalOffer
	case desc.Type == webrtc.SDPTypeAnswer && f.state == negotiation.StateHaveRemoteOffer:
		f.currentLocal, f.currentRemote = &desc, f.pendingRemote
		f.pendingRemote = nil
		f.state = negotiation.StateStable
	default:
		return errWrongState
	}

	return nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := f.fail("SetRemoteDescription"); err != nil {
		return err
	}

	switch {
	case desc.Type == webrtc.SDPTypeOffer && f.state == negotiation.StateStable:
		f.pendingRemote = &desc
		f.state = negotiation.StateHaveRemoteOffer
	case desc.Type == webrtc.SDPTypeAnswer && f.state == negotiation.StateHaveLocalOffer:
		f.currentLocal, f.currentRemote = f.pendingLocal, &desc
		f.pendingLocal = nil
		f.state = negotiation.StateStable
	default:
		return errWrongState
	}

	return nil
}

func (f *fakeTransport) Rollback() error {
	if err := f.fail("Rollback"); err != nil {
		return err
	}

	switch f.state {
	case negotiation.StateHaveLocalOffer:
		f.pendingLocal = nil
	case negotiation.StateHaveRemoteOffer:
		f.pendingRemote = nil
	default:
		return errWrongState
	}

	f.state = negotiation.StateStable
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := f.fail("AddICECandidate"); err != nil {
		return err
	}

	if f.currentRemote == nil && f.pendingRemote == nil {
		return errWrongState
	}

	f.candidates = append(f.candidates, candidate.Candidate)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	f.state = negotiation.StateClosed
	return nil
}

// Queues whatever a session sends, so that the test decides when it's delivered.
type outbox struct {
	queue []signaling.Envelope
}

func (o *outbox) Send(event string, payload any) error {
	env, err := signaling.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	o.queue = append(o.queue, env)
	return nil
}

func (o *outbox) pop() (signaling.Envelope, bool) {
	if len(o.queue) == 0 {
		return signaling.Envelope{}, false
	}

	env := o.queue[0]
	o.queue = o.queue[1:]
	return env, true
}

func (o *outbox) events() []string {
	events := []string{}
	for _, env := range o.queue {
		events = append(events, env.Event)
	}

	return events
}
