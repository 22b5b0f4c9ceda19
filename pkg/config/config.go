package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/call"
	"github.com/tandem-rtc/tandem/pkg/logging"
	"github.com/tandem-rtc/tandem/pkg/peer"
	"github.com/tandem-rtc/tandem/pkg/relay"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Configuration shared by the relay and the peer. Each binary uses the sections it needs.
type Config struct {
	// Signaling relay configuration.
	Relay relay.Config `yaml:"relay"`
	// Peer connection configuration (ICE servers etc).
	WebRTC peer.Config `yaml:"webrtc"`
	// Call configuration.
	Call call.Config `yaml:"call"`
	// Tracing configuration. Tracing is off unless an exporter is configured.
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Logging configuration.
	Log logging.Config `yaml:"log"`
}

var (
	// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
	ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")
	ErrInvalidConfig  = errors.New("invalid config values")
)

func DefaultConfig() Config {
	return Config{
		Relay:  relay.DefaultConfig(),
		WebRTC: peer.DefaultConfig(),
		Call:   call.DefaultConfig(),
		Log:    logging.DefaultConfig(),
	}
}

// Tries to load a config from the `CONFIG` environment variable.
// If the environment variable is not set, tries to load a config from the
// provided path to the config file (YAML). Returns an error if the config could
// not be loaded.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}

		return LoadConfigFromPath(path)
	}

	return config, nil
}

// Tries to load the config from environment variable (`CONFIG`).
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// Tries to load a config from the provided path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// Load config from the provided string. Values that are not set keep their defaults.
// Returns an error if the string is not a valid YAML or the values are invalid.
func LoadConfigFromString(configString string) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"relay", c.Relay.Validate},
		{"webrtc", c.WebRTC.Validate},
		{"call", c.Call.Validate},
		{"telemetry", c.Telemetry.Validate},
		{"log", c.Log.Validate},
	}

	for _, section := range sections {
		if err := section.validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, section.name, err)
		}
	}

	return nil
}
