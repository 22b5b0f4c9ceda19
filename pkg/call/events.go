package call

import (
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/peer"
	"github.com/tandem-rtc/tandem/pkg/signaling"
)

// Anything that is handled by the loop of the controller.
type event interface{}

// A user action, `run` is executed on the loop.
type command struct {
	run   func() error
	reply chan<- error
}

type signalingEvent struct {
	env signaling.Envelope
}

type peerEvent struct {
	message common.Message[Generation, peer.MessageContent]
}

// Local media for an incoming call has been acquired (or not).
type mediaReady struct {
	generation Generation
	offer      signaling.Description
	tracks     []media.Track
	err        error
}

// The screen track ended on its own.
type screenShareEnded struct {
	trackID string
}

type disconnected struct {
	err error
}
