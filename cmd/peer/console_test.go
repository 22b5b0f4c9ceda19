package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/call"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/negotiation"
)

type fakeController struct {
	calls []string
	muted bool
}

func (f *fakeController) Call(context.Context) error {
	f.calls = append(f.calls, "call")
	return nil
}

func (f *fakeController) HangUp() error {
	f.calls = append(f.calls, "hangup")
	return call.ErrNotInCall
}

func (f *fakeController) ToggleMute() (bool, error) {
	f.calls = append(f.calls, "mute")
	f.muted = !f.muted
	return f.muted, nil
}

func (f *fakeController) ToggleVideo() (bool, error) {
	f.calls = append(f.calls, "video")
	return false, nil
}

func (f *fakeController) StartScreenShare(context.Context) error {
	f.calls = append(f.calls, "share")
	return nil
}

func (f *fakeController) StopScreenShare() error {
	f.calls = append(f.calls, "unshare")
	return nil
}

func (f *fakeController) AddTrack(_ context.Context, kind media.Kind) error {
	f.calls = append(f.calls, "add "+string(kind))
	return nil
}

func (f *fakeController) RemoveTrack(kind media.Kind) error {
	f.calls = append(f.calls, "remove "+string(kind))
	return nil
}

func (f *fakeController) Snapshot() call.Snapshot {
	return call.Snapshot{
		Room:        "42",
		RoomState:   call.RoomPaired,
		PeerID:      "b",
		PeerName:    "Bob",
		InCall:      true,
		Role:        negotiation.RolePolite,
		Negotiation: negotiation.StateStable,
		LocalTracks: []media.Kind{media.KindAudio, media.KindVideo},
		RemoteTracks: []call.RemoteTrack{
			{ID: "video-1", Codec: "video/VP8", Packets: 12},
		},
	}
}

func TestConsoleRunsCommands(t *testing.T) {
	controller := &fakeController{}
	input := "call\n\nmute\nmute\nvideo\nshare\nunshare\nadd audio\nremove video\nhangup\nquit\ncall\n"
	var output bytes.Buffer

	require.NoError(t, newConsole(controller, strings.NewReader(input), &output).Run(context.Background()))

	assert.Equal(t, []string{
		"call", "mute", "mute", "video", "share", "unshare", "add audio", "remove video", "hangup",
	}, controller.calls)
	assert.Contains(t, output.String(), "muted: true")
	assert.Contains(t, output.String(), "muted: false")
	assert.Contains(t, output.String(), "error: "+call.ErrNotInCall.Error())
}

func TestConsoleReportsMistakes(t *testing.T) {
	controller := &fakeController{}
	var output bytes.Buffer

	input := "dance\nadd\nstatus\n"
	require.NoError(t, newConsole(controller, strings.NewReader(input), &output).Run(context.Background()))

	assert.Empty(t, controller.calls)
	assert.Contains(t, output.String(), `unknown command "dance"`)
	assert.Contains(t, output.String(), "usage: add audio|video")
	assert.Contains(t, output.String(), "room 42: paired with Bob (b)")
	assert.Contains(t, output.String(), "12 packets")
}

func TestConsoleStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader, writer := io.Pipe()
	defer writer.Close()

	assert.NoError(t, newConsole(&fakeController{}, reader, io.Discard).Run(ctx))
}
