package relay

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid relay config")

// Configuration of the signaling relay.
type Config struct {
	// Address to listen on, e.g. `:8080`.
	ListenAddress string `yaml:"listen"`
	// Time allowed to write a message to an endpoint (in seconds).
	WriteTimeout int `yaml:"writeTimeout"`
	// If an endpoint stays silent (not even a pong) for this amount of time,
	// the connection is considered dead (in seconds).
	PongTimeout int `yaml:"pongTimeout"`
	// Maximum size of a single message from an endpoint (in bytes).
	MaxMessageSize int64 `yaml:"maxMessageSize"`
	// How many outgoing messages are buffered per endpoint before the endpoint
	// is considered a slow consumer and gets disconnected.
	QueueSize int `yaml:"queueSize"`
	// Origins allowed to connect. Any origin is allowed if empty.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddress:  ":8080",
		WriteTimeout:   10,
		PongTimeout:    60,
		MaxMessageSize: 64 * 1024,
		QueueSize:      256,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ListenAddress == "":
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("%w: write timeout must be positive", ErrInvalidConfig)
	case c.PongTimeout <= 1:
		return fmt.Errorf("%w: pong timeout must be greater than one second", ErrInvalidConfig)
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	}

	return nil
}

func (c Config) writeWait() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

func (c Config) pongWait() time.Duration {
	return time.Duration(c.PongTimeout) * time.Second
}

// Pings are sent after this period of silence. Must be less than the pong timeout.
func (c Config) pingPeriod() time.Duration {
	return c.pongWait() * 9 / 10
}
