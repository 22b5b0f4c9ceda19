package call

import (
	"errors"
	"fmt"

	"github.com/tandem-rtc/tandem/pkg/media"
)

var ErrInvalidConfig = errors.New("invalid call config")

// Configuration of the calls.
type Config struct {
	// Renegotiate after an outgoing track was swapped in place (e.g. camera -> screen),
	// so that the peer learns about the new source. A swap that had to fall back to
	// removing and adding the track always renegotiates.
	RenegotiateOnReplace bool `yaml:"renegotiateOnReplace"`
	// Capacity of the event queue of a call.
	QueueSize int `yaml:"queueSize"`
	// Kinds of media captured when a call starts.
	Media []media.Kind `yaml:"media"`
}

func DefaultConfig() Config {
	return Config{
		RenegotiateOnReplace: true,
		QueueSize:            1024,
		Media:                []media.Kind{media.KindAudio, media.KindVideo},
	}
}

func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	}

	for _, kind := range c.Media {
		if kind != media.KindAudio && kind != media.KindVideo {
			return fmt.Errorf("%w: can't capture %q when a call starts", ErrInvalidConfig, kind)
		}
	}

	return nil
}
