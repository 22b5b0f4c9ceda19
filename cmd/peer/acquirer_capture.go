//go:build capture

package main

import (
	"github.com/pion/webrtc/v3"
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/peer"
)

// Captures the camera, the microphone and the screen of the host.
func newAcquirer() (media.Acquirer, []peer.MediaEngineOption, error) {
	acquirer, err := media.NewDeviceAcquirer()
	if err != nil {
		return nil, nil, err
	}

	populate := func(mediaEngine *webrtc.MediaEngine) error {
		acquirer.Populate(mediaEngine)
		return nil
	}

	return acquirer, []peer.MediaEngineOption{populate}, nil
}
