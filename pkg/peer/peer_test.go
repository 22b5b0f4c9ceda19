package peer_test

import (
	"io"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/peer"
)

func newPeer(t *testing.T, factory *peer.Factory, name string) *peer.Peer[string] {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	worker := common.StartWorker(common.WorkerConfig[common.Message[string, peer.MessageContent]]{
		ChannelSize: 1024,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      func(common.Message[string, peer.MessageContent]) {},
	})
	t.Cleanup(worker.Stop)

	p, err := peer.NewPeer(factory, common.NewSink[string, peer.MessageContent](name, worker), logrus.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return p
}

func newTrack(t *testing.T, kind media.Kind) media.Track {
	t.Helper()

	track, err := media.NewSyntheticTrack(kind, false)
	require.NoError(t, err)
	t.Cleanup(track.Stop)

	return track
}

func TestOfferAnswerAndTrackSubstitution(t *testing.T) {
	factory, err := peer.NewFactory(peer.Config{})
	require.NoError(t, err)

	alice := newPeer(t, factory, "alice")
	bob := newPeer(t, factory, "bob")

	camera := newTrack(t, media.KindVideo)
	screen := newTrack(t, media.KindScreen)
	require.NoError(t, alice.AddTrack(newTrack(t, media.KindAudio)))
	require.NoError(t, alice.AddTrack(camera))

	offer, err := alice.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, alice.SetLocalDescription(offer))
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, alice.SignalingState())

	require.NoError(t, bob.SetRemoteDescription(offer))
	answer, err := bob.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, bob.SetLocalDescription(answer))
	require.NoError(t, alice.SetRemoteDescription(answer))

	assert.Equal(t, webrtc.SignalingStateStable, alice.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, bob.SignalingState())

	// Camera and screen share the codec, so the swap happens in place.
	require.NoError(t, alice.ReplaceTrack(camera.ID(), screen))
	require.ErrorIs(t, alice.ReplaceTrack(camera.ID(), screen), peer.ErrUnknownTrack)
	require.NoError(t, alice.ReplaceTrack(screen.ID(), camera))

	require.NoError(t, alice.RemoveTrack(camera.ID()))
	require.ErrorIs(t, alice.RemoveTrack(camera.ID()), peer.ErrUnknownTrack)
}

func TestRollbackWithoutOffer(t *testing.T) {
	factory, err := peer.NewFactory(peer.DefaultConfig())
	require.NoError(t, err)

	alice := newPeer(t, factory, "alice")
	require.ErrorIs(t, alice.Rollback(), peer.ErrNothingToRollBack)
}
