//go:build !capture

package main

import (
	"github.com/tandem-rtc/tandem/pkg/media"
	"github.com/tandem-rtc/tandem/pkg/peer"
)

// Without capture support the peer sends generated media.
func newAcquirer() (media.Acquirer, []peer.MediaEngineOption, error) {
	return &media.SyntheticAcquirer{}, nil, nil
}
