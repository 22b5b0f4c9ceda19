package peer

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
)

// Registers the codecs of the media engine, e.g. those of a capture device.
// Pion's default codecs are registered if no option is given.
type MediaEngineOption func(*webrtc.MediaEngine) error

// Peer connection factory is used to construct new (pre-configured) peer connections.
type Factory struct {
	api           *webrtc.API
	configuration webrtc.Configuration
}

func NewFactory(config Config, options ...MediaEngineOption) (*Factory, error) {
	api, err := createWebRTCAPI(config, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC API: %w", err)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(config.ICEServers))
	for _, server := range config.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &Factory{
		api:           api,
		configuration: webrtc.Configuration{ICEServers: iceServers},
	}, nil
}

// Creates a peer that reports everything that happens to it to the sink.
func NewPeer[ID comparable](
	factory *Factory,
	sink *common.SinkWithSender[ID, MessageContent],
	logger *logrus.Entry,
) (*Peer[ID], error) {
	peerConnection, err := factory.api.NewPeerConnection(factory.configuration)
	if err != nil {
		logger.WithError(err).Error("failed to create peer connection")
		return nil, fmt.Errorf("%w: %v", ErrCantCreatePeerConnection, err)
	}

	return newPeer(peerConnection, sink, logger), nil
}

// Creates Pion's WebRTC API with the default codecs and interceptors.
func createWebRTCAPI(config Config, options ...MediaEngineOption) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if len(options) == 0 {
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("failed to register default codecs: %w", err)
		}
	}

	for _, option := range options {
		if err := option(mediaEngine); err != nil {
			return nil, fmt.Errorf("failed to configure the media engine: %w", err)
		}
	}

	// Create a InterceptorRegistry. This is the user configurable RTP/RTCP
	// Pipeline. This provides NACKs, RTCP Reports and other features. If
	// `webrtc.NewPeerConnection` is used, then it is enabled by default. If
	// it's managed manually, one must create an InterceptorRegistry for each
	// PeerConnection.
	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptors); err != nil {
		return nil, fmt.Errorf("failed to set default interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if len(config.PublicIPs) > 0 {
		settingEngine.SetNAT1To1IPs(config.PublicIPs, webrtc.ICECandidateTypeHost)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptors),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}
