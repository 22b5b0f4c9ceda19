package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Any failure of acquiring the local media matches this error.
	ErrMediaAcquisitionFailed = errors.New("media acquisition failed")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrDeviceUnavailable      = errors.New("device unavailable")
)

// Captures local media.
type Acquirer interface {
	// Acquires one track per requested kind. Either all tracks are acquired or none.
	Acquire(ctx context.Context, kinds ...Kind) ([]Track, error)
}

// Failure to acquire a track of a given kind.
type AcquisitionError struct {
	Kind Kind
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMediaAcquisitionFailed, e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func (e *AcquisitionError) Is(target error) bool {
	return target == ErrMediaAcquisitionFailed
}

func acquisitionError(kind Kind, err error) error {
	return &AcquisitionError{Kind: kind, Err: err}
}

func stopAll(tracks []Track) {
	for _, track := range tracks {
		track.Stop()
	}
}
