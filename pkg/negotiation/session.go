package negotiation

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/signaling"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// The part of a peer connection the negotiation drives.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	// Discards the pending offer, local or remote, and returns to `stable`.
	Rollback() error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// Sends signaling messages to the remote peer.
type Outbox interface {
	Send(event string, payload any) error
}

type Option func(*Session)

// Display name that is announced to the remote peer with the initial offer.
func WithDisplayName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// Parent telemetry of the session span.
func WithTelemetry(parent *telemetry.Telemetry) Option {
	return func(s *Session) {
		s.parentTelemetry = parent
	}
}

// Drives the offer/answer/candidate exchange with a single remote peer following the
// perfect negotiation pattern. Collisions ("glare") are resolved by the roles of the
// endpoints without any extra round trip.
//
// Events of a session must be handed to it in the order they arrived.
type Session struct {
	local  string
	remote string
	name   string
	role   Role

	transport Transport
	outbox    Outbox
	logger    *logrus.Entry

	parentTelemetry *telemetry.Telemetry
	telemetry       *telemetry.Telemetry

	mutex sync.Mutex

	state        SignalingState
	localCursor  Cursor
	remoteCursor Cursor

	// We're in the middle of creating and applying an offer.
	makingOffer bool
	// We're in the middle of applying a remote answer.
	isSettingRemoteAnswerPending bool
	// A renegotiation was requested while an exchange was in flight.
	pendingRenegotiation bool
	// At least one offer was sent or received, i.e. the call has begun.
	started bool
	// At least one exchange has completed, subsequent offers are renegotiations.
	established bool
	// Remote candidates can only be applied once a remote description is set.
	hasRemoteDescription bool
	bufferedCandidates   []webrtc.ICECandidateInit

	stats Stats
}

func NewSession(
	local, remote string,
	transport Transport,
	outbox Outbox,
	logger *logrus.Entry,
	options ...Option,
) (*Session, error) {
	role, err := RoleFor(local, remote)
	if err != nil {
		return nil, err
	}

	session := &Session{
		local:     local,
		remote:    remote,
		role:      role,
		transport: transport,
		outbox:    outbox,
		logger:    logger.WithFields(logrus.Fields{"peer": remote, "role": role}),
	}

	for _, option := range options {
		option(session)
	}

	attributes := []attribute.KeyValue{
		telemetry.EndpointKey.String(local),
		telemetry.PeerKey.String(remote),
		telemetry.RoleKey.String(role.String()),
	}

	session.telemetry = session.parentTelemetry.CreateChild("negotiation", attributes...)

	return session, nil
}

// Starts the call by sending the initial offer.
func (s *Session) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}

	s.started = true
	return s.negotiate()
}

// Announces a change of the local track set. The offer is deferred if an exchange is in flight.
func (s *Session) Renegotiate() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}

	// The first offer carries whatever tracks there are by then.
	if !s.started {
		s.logger.Debug("not in a call yet, nothing to renegotiate")
		return nil
	}

	return s.negotiate()
}

// Handles a remote offer. `initial` is set for the offer that starts the call.
func (s *Session) HandleOffer(desc signaling.Description, initial bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger := s.logger.WithField("state", s.state)

	if s.state == StateClosed {
		logger.Debug("offer after the session has been closed, ignoring")
		return nil
	}

	offer, err := sessionDescription(desc, webrtc.SDPTypeOffer)
	if err != nil {
		logger.WithError(err).Warn("ignoring offer")
		return nil
	}

	collision := s.makingOffer || (s.state != StateStable && !s.isSettingRemoteAnswerPending)
	if collision {
		if s.role == RoleImpolite {
			s.stats.OffersIgnored++
			s.telemetry.AddEvent("offer ignored")
			logger.Info("offer collision, ignoring the remote offer")
			return nil
		}

		if s.state == StateHaveLocalOffer {
			if err := s.transport.Rollback(); err != nil {
				err = wrap("rollback", err)
				logger.WithError(err).Error("failed to roll back the local offer")
				return err
			}

			s.stats.Rollbacks++
			s.telemetry.AddEvent("rolled back")
			s.state = StateStable
			s.localCursor = CursorNone
			// Our change still has to reach the peer.
			s.pendingRenegotiation = true
			logger.Info("offer collision, rolled back the local offer")
		}
	}

	if s.state != StateStable {
		logger.WithError(ErrInvalidSignalingState).Warn("can't apply the remote offer")
		return nil
	}

	if err := s.transport.SetRemoteDescription(offer); err != nil {
		err = wrap("set remote offer", err)
		logger.WithError(err).Error("failed to apply the remote offer")
		return err
	}

	previous := offerState{s.started, s.remoteCursor, s.hasRemoteDescription}
	s.started = true
	s.state = StateHaveRemoteOffer
	s.remoteCursor = CursorOfferPending
	s.hasRemoteDescription = true
	s.flushCandidates()

	answer, err := s.transport.CreateAnswer()
	if err != nil {
		err = wrap("create answer", err)
		logger.WithError(err).Error("failed to create an answer")
		s.abandonRemoteOffer(previous)
		return err
	}

	if err := s.transport.SetLocalDescription(answer); err != nil {
		err = wrap("set local answer", err)
		logger.WithError(err).Error("failed to apply the local answer")
		s.abandonRemoteOffer(previous)
		return err
	}

	s.state = StateStable
	s.remoteCursor = CursorAnswerApplied
	s.established = true

	event := signaling.EventNegoAnswer
	if initial {
		event = signaling.EventCallAnswer
	}

	if err := s.outbox.Send(event, signaling.Answer{To: s.remote, Ans: description(answer)}); err != nil {
		logger.WithError(err).Error("failed to send the answer")
		return err
	}

	s.stats.AnswersSent++
	s.telemetry.AddEvent("answer sent", attribute.String("event", event))
	logger.WithField("event", event).Debug("answer sent")

	return s.flushRenegotiation()
}

// What applying a remote offer changes.
type offerState struct {
	started              bool
	remoteCursor         Cursor
	hasRemoteDescription bool
}

// Rolls an applied remote offer back after we failed to answer it, so that the session
// is stable again and the peer may retry.
func (s *Session) abandonRemoteOffer(previous offerState) {
	if err := s.transport.Rollback(); err != nil {
		s.logger.WithError(wrap("rollback", err)).Error("failed to roll back the remote offer")
		return
	}

	s.stats.Rollbacks++
	s.telemetry.AddEvent("remote offer rolled back")
	s.state = StateStable
	s.started = previous.started
	s.remoteCursor = previous.remoteCursor
	s.hasRemoteDescription = previous.hasRemoteDescription
	s.logger.Info("rolled back the remote offer")
}

// Handles a remote answer to our offer. Stray and duplicate answers are ignored.
func (s *Session) HandleAnswer(desc signaling.Description) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger := s.logger.WithField("state", s.state)

	if s.state != StateHaveLocalOffer {
		s.stats.AnswersIgnored++
		logger.WithError(ErrInvalidSignalingState).Warn("answer without an outstanding offer, ignoring")
		return nil
	}

	answer, err := sessionDescription(desc, webrtc.SDPTypeAnswer)
	if err != nil {
		s.stats.AnswersIgnored++
		logger.WithError(err).Warn("ignoring answer")
		return nil
	}

	s.isSettingRemoteAnswerPending = true
	err = s.transport.SetRemoteDescription(answer)
	s.isSettingRemoteAnswerPending = false

	if err != nil {
		err = wrap("set remote answer", err)
		logger.WithError(err).Error("failed to apply the remote answer")
		return err
	}

	s.state = StateStable
	s.localCursor = CursorAnswerApplied
	s.hasRemoteDescription = true
	s.established = true
	s.telemetry.AddEvent("answer applied")
	logger.Debug("answer applied")

	s.flushCandidates()
	return s.flushRenegotiation()
}

// Applies a remote candidate, or buffers it if there is no remote description yet.
func (s *Session) HandleRemoteCandidate(candidate signaling.Candidate) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateClosed {
		return nil
	}

	init := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	}

	if !s.hasRemoteDescription {
		s.bufferedCandidates = append(s.bufferedCandidates, init)
		s.stats.CandidatesBuffered++
		return nil
	}

	if err := s.transport.AddICECandidate(init); err != nil {
		err = wrap("add candidate", err)
		s.logger.WithError(err).Warn("failed to add a remote candidate")
		return err
	}

	return nil
}

// Forwards a candidate gathered by the local transport.
func (s *Session) HandleLocalCandidate(candidate webrtc.ICECandidateInit) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateClosed {
		return nil
	}

	payload := signaling.ICECandidate{
		To: s.remote,
		Candidate: signaling.Candidate{
			Candidate:     candidate.Candidate,
			SDPMid:        candidate.SDPMid,
			SDPMLineIndex: candidate.SDPMLineIndex,
		},
	}

	if err := s.outbox.Send(signaling.EventICECandidate, payload); err != nil {
		s.logger.WithError(err).Warn("failed to send a local candidate")
		return err
	}

	s.stats.CandidatesSent++
	return nil
}

// Tears the session down and closes the transport. Idempotent.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateClosed {
		return nil
	}

	s.state = StateClosed
	s.pendingRenegotiation = false
	s.bufferedCandidates = nil
	s.telemetry.End()
	s.logger.Debug("negotiation session closed")

	return wrap("close", s.transport.Close())
}

func (s *Session) State() SignalingState {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.state
}

func (s *Session) LocalCursor() Cursor {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.localCursor
}

func (s *Session) RemoteCursor() Cursor {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.remoteCursor
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) Remote() string {
	return s.remote
}

func (s *Session) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.stats
}

// Sends an offer unless an exchange is already in flight, then it's deferred.
// Must be called with the session locked.
func (s *Session) negotiate() error {
	if s.state != StateStable || s.makingOffer {
		s.pendingRenegotiation = true
		s.logger.WithField("state", s.state).Debug("exchange in flight, renegotiation deferred")
		return nil
	}

	s.makingOffer = true
	defer func() { s.makingOffer = false }()

	offer, err := s.transport.CreateOffer()
	if err != nil {
		err = wrap("create offer", err)
		s.logger.WithError(err).Error("failed to create an offer")
		return err
	}

	if err := s.transport.SetLocalDescription(offer); err != nil {
		err = wrap("set local offer", err)
		s.logger.WithError(err).Error("failed to apply the local offer")
		return err
	}

	s.state = StateHaveLocalOffer
	s.localCursor = CursorOfferPending

	event := signaling.EventNegoOffer
	payload := signaling.Offer{To: s.remote, Offer: description(offer)}
	if !s.established {
		event = signaling.EventCallOffer
		payload.Name = s.name
	}

	if err := s.outbox.Send(event, payload); err != nil {
		s.logger.WithError(err).Error("failed to send the offer")
		return err
	}

	s.stats.OffersSent++
	s.telemetry.AddEvent("offer sent", attribute.String("event", event))
	s.logger.WithField("event", event).Debug("offer sent")

	return nil
}

// Issues the deferred renegotiation, if any. Must be called with the session locked.
func (s *Session) flushRenegotiation() error {
	if !s.pendingRenegotiation || s.state != StateStable {
		return nil
	}

	s.pendingRenegotiation = false
	return s.negotiate()
}

// Must be called with the session locked.
func (s *Session) flushCandidates() {
	candidates := s.bufferedCandidates
	s.bufferedCandidates = nil

	for _, candidate := range candidates {
		if err := s.transport.AddICECandidate(candidate); err != nil {
			s.logger.WithError(wrap("add candidate", err)).Warn("failed to add a buffered candidate")
			continue
		}

		s.stats.CandidatesFlushed++
	}
}

func sessionDescription(desc signaling.Description, expected webrtc.SDPType) (webrtc.SessionDescription, error) {
	if sdpType := webrtc.NewSDPType(desc.Type); sdpType != expected {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: expected %s, got %q", ErrInvalidDescription, expected, desc.Type)
	}

	if desc.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty %s", ErrInvalidDescription, expected)
	}

	return webrtc.SessionDescription{Type: expected, SDP: desc.SDP}, nil
}

func description(desc webrtc.SessionDescription) signaling.Description {
	return signaling.Description{Type: desc.Type.String(), SDP: desc.SDP}
}
