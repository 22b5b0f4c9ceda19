package call

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/negotiation"
	"github.com/tandem-rtc/tandem/pkg/peer"
	"github.com/tandem-rtc/tandem/pkg/signaling"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/maps"
)

// Events relayed from the peer (or from the relay) that the controller listens to.
var boundEvents = []string{
	signaling.EventRoomJoined,
	signaling.EventRoomFull,
	signaling.EventPeerJoined,
	signaling.EventPeerLeft,
	signaling.EventCallIncoming,
	signaling.EventCallAnswer,
	signaling.EventNegoOffer,
	signaling.EventNegoFinal,
	signaling.EventICECandidate,
	signaling.EventCallHangup,
}

// Runs the calls of a single endpoint. Everything that affects the call (signaling messages,
// user actions, transport notifications, tracks that end on their own) is turned into an
// event and handled one by one on a single goroutine, so the handlers never race.
type Controller struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	options   Options
	channel   signaling.Channel
	logger    *logrus.Entry
	telemetry *telemetry.Telemetry
	loop      *common.Worker[event]

	// Everything below is owned by the loop.

	self        string
	roomState   RoomState
	pendingJoin chan error
	peerID      string
	peerName    string

	tracks *media.TrackSet
	// The camera is held (not stopped) while the screen is shared.
	camera media.Track
	screen media.Track

	generation   Generation
	session      *negotiation.Session
	transport    Transport
	connection   webrtc.PeerConnectionState
	remoteTracks map[string]*RemoteTrack
}

// Creates the controller and binds it to the signaling channel.
func New(ctx context.Context, options Options) (*Controller, error) {
	if options.Channel == nil || options.Acquirer == nil || options.Transports == nil || options.Renderer == nil {
		return nil, errors.New("channel, acquirer, transports and renderer are required")
	}

	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	if options.Logger == nil {
		options.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(ctx)

	controller := &Controller{
		ctx:          ctx,
		cancel:       cancel,
		options:      options,
		channel:      options.Channel,
		logger:       options.Logger.WithField("room", options.Room),
		tracks:       media.NewTrackSet(),
		remoteTracks: make(map[string]*RemoteTrack),
	}

	controller.telemetry = telemetry.NewTelemetry(ctx, "call", telemetry.RoomKey.String(options.Room))

	controller.loop = common.StartWorker(common.WorkerConfig[event]{
		ChannelSize: options.Config.QueueSize,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      controller.handle,
	})

	for _, name := range boundEvents {
		options.Channel.OnEvent(name, func(env signaling.Envelope) {
			controller.post(signalingEvent{env})
		})
	}

	options.Channel.OnDisconnect(func(err error) {
		controller.post(disconnected{err})
	})

	return controller, nil
}

// Returns the status of the room and of the call.
func (c *Controller) Snapshot() Snapshot {
	var snapshot Snapshot
	_ = c.exec(context.Background(), func() error {
		snapshot = c.snapshot()
		return nil
	})

	return snapshot
}

// Ends the call (if any) and stops the controller. The signaling channel is not closed.
func (c *Controller) Close() {
	_ = c.exec(context.Background(), func() error {
		if c.session != nil {
			c.endCall(true)
		}
		return nil
	})

	c.loop.Stop()
	<-c.loop.Done()
	c.cancel()
	c.telemetry.End()
}

// Posts an event to the loop, waiting while the queue is full. Events are only lost once
// the controller is closed. Never called from the loop itself.
func (c *Controller) post(e event) {
	err := c.loop.SendContext(c.ctx, e)
	if err != nil && !errors.Is(err, common.ErrWorkerClosed) && !errors.Is(err, context.Canceled) {
		c.logger.WithError(err).Errorf("failed to post %T", e)
	}
}

// Runs `fn` on the loop and waits for its result.
func (c *Controller) exec(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if err := c.loop.SendContext(ctx, command{fn, reply}); err != nil {
		if errors.Is(err, common.ErrWorkerClosed) {
			return ErrClosed
		}
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loop.Done():
		return ErrClosed
	}
}

func (c *Controller) handle(e event) {
	switch e := e.(type) {
	case command:
		e.reply <- e.run()
	case signalingEvent:
		c.handleSignaling(e.env)
	case peerEvent:
		c.handlePeer(e.message)
	case mediaReady:
		c.handleIncomingMedia(e)
	case screenShareEnded:
		c.handleScreenShareEnded(e)
	case disconnected:
		c.handleDisconnected(e.err)
	default:
		c.logger.Errorf("unknown event %T", e)
	}
}

// Creates a new call session with the current peer.
func (c *Controller) startSession() error {
	c.generation++
	logger := c.logger.WithFields(logrus.Fields{"peer": c.peerID, "generation": c.generation})

	sink := common.NewSink[Generation, peer.MessageContent](c.generation, peerReceiver{c.ctx, c.loop})
	transport, err := c.options.Transports(sink, logger)
	if err != nil {
		logger.WithError(err).Error("failed to create the transport")
		return err
	}

	session, err := negotiation.NewSession(
		c.self,
		c.peerID,
		transport,
		c.channel,
		logger,
		negotiation.WithDisplayName(c.options.Name),
		negotiation.WithTelemetry(c.telemetry),
	)
	if err != nil {
		sink.Seal()
		_ = transport.Close()
		return err
	}

	for _, track := range c.tracks.Tracks() {
		if err := transport.AddTrack(track); err != nil {
			logger.WithError(err).Error("failed to send a local track")
		}
	}

	c.session = session
	c.transport = transport
	c.connection = webrtc.PeerConnectionStateNew
	c.telemetry.AddEvent("call session started", attribute.Int64("generation", int64(c.generation)))
	logger.WithField("role", session.Role()).Info("call session started")

	return nil
}

// Tears the call session down: local media is released and the transport is closed
// before anything else is handled.
func (c *Controller) endCall(notifyPeer bool) {
	if c.session == nil {
		return
	}

	if err := c.session.Close(); err != nil {
		c.logger.WithError(err).Warn("failed to close the transport")
	}

	if c.screen != nil {
		c.screen.Stop()
		c.screen = nil
	}

	if c.camera != nil {
		c.camera.Stop()
		c.camera = nil
	}

	c.tracks.StopAll()
	c.options.Renderer.RenderLocal(nil)

	for _, id := range maps.Keys(c.remoteTracks) {
		c.options.Renderer.RemoteGone(*c.remoteTracks[id])
		delete(c.remoteTracks, id)
	}

	c.session = nil
	c.transport = nil
	c.connection = webrtc.PeerConnectionStateClosed
	c.telemetry.AddEvent("call session ended")

	if notifyPeer && c.peerID != "" {
		if err := c.channel.Send(signaling.EventCallHangup, signaling.Hangup{To: c.peerID}); err != nil {
			c.logger.WithError(err).Warn("failed to tell the peer that we hung up")
		}
	}

	c.logger.WithField("generation", c.generation).Info("call session ended")
}

// Renegotiates if the change altered the media sections.
func (c *Controller) renegotiateOn(change media.Change) error {
	if c.session == nil || !change.RequiresRenegotiation() {
		return nil
	}

	return c.session.Renegotiate()
}

func (c *Controller) snapshot() Snapshot {
	snapshot := Snapshot{
		Self:         c.self,
		Room:         c.options.Room,
		RoomState:    c.roomState,
		PeerID:       c.peerID,
		PeerName:     c.peerName,
		InCall:       c.session != nil,
		Negotiation:  negotiation.StateClosed,
		Connection:   c.connection,
		LocalTracks:  c.tracks.Kinds(),
		Muted:        c.tracks.Audio() != nil && !c.tracks.Enabled(media.KindAudio),
		VideoEnabled: c.cameraTrack() != nil && c.cameraTrack().Enabled(),
		Sharing:      c.screen != nil,
	}

	if c.session != nil {
		snapshot.Role = c.session.Role()
		snapshot.Negotiation = c.session.State()
		snapshot.Stats = c.session.Stats()
	}

	for _, track := range c.remoteTracks {
		snapshot.RemoteTracks = append(snapshot.RemoteTracks, *track)
	}

	return snapshot
}

// Forwards the messages of the transport to the loop. Transports report from their own
// goroutines, so waiting for a free slot can't stall the loop.
type peerReceiver struct {
	ctx  context.Context //nolint:containedctx
	loop *common.Worker[event]
}

func (r peerReceiver) Send(message common.Message[Generation, peer.MessageContent]) error {
	// Receive reports are cumulative, the next one makes up for a skipped one.
	if _, report := message.Content.(peer.RTPPacketsReceived); report {
		return r.loop.Send(peerEvent{message})
	}

	return r.loop.SendContext(r.ctx, peerEvent{message})
}
