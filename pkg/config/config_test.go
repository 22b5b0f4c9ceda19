package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/config"
	"github.com/tandem-rtc/tandem/pkg/media"
)

const sample = `
relay:
  listen: ":9000"
  allowedOrigins: ["https://tandem.example"]
webrtc:
  iceServers:
    - urls: ["stun:stun.example.org:3478"]
    - urls: ["turn:turn.example.org:3478"]
      username: tandem
      credential: secret
call:
  renegotiateOnReplace: false
  media: [audio]
telemetry:
  otlp:
    host: "localhost:4318"
log:
  level: debug
  format: json
`

func TestLoadConfigFromString(t *testing.T) {
	loaded, err := config.LoadConfigFromString(sample)
	require.NoError(t, err)

	assert.Equal(t, ":9000", loaded.Relay.ListenAddress)
	assert.Equal(t, []string{"https://tandem.example"}, loaded.Relay.AllowedOrigins)
	// Unset values keep their defaults.
	assert.Equal(t, 256, loaded.Relay.QueueSize)
	assert.Equal(t, 1024, loaded.Call.QueueSize)

	require.Len(t, loaded.WebRTC.ICEServers, 2)
	assert.Equal(t, "tandem", loaded.WebRTC.ICEServers[1].Username)
	assert.False(t, loaded.Call.RenegotiateOnReplace)
	assert.Equal(t, []media.Kind{media.KindAudio}, loaded.Call.Media)
	assert.Equal(t, "localhost:4318", loaded.Telemetry.OTLP.Host)
	assert.Equal(t, "debug", loaded.Log.Level)
	assert.Equal(t, "json", loaded.Log.Format)
}

func TestEmptyConfigIsDefault(t *testing.T) {
	loaded, err := config.LoadConfigFromString("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), *loaded)
	assert.True(t, loaded.Call.RenegotiateOnReplace)
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"relay":  "relay:\n  queueSize: 0\n",
		"webrtc": "webrtc:\n  iceServers:\n    - urls: [\"turn:turn.example.org\"]\n",
		"call":   "call:\n  media: [screen]\n",
		"log":    "log:\n  level: loud\n",
	}

	for section, yaml := range cases {
		_, err := config.LoadConfigFromString(yaml)
		assert.ErrorIs(t, err, config.ErrInvalidConfig, section)
		assert.ErrorContains(t, err, section)
	}

	_, err := config.LoadConfigFromString("relay: [")
	assert.Error(t, err)
}

func TestLoadConfigPrefersEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  listen: \":7000\"\n"), 0o600))

	t.Setenv("CONFIG", "")
	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", loaded.Relay.ListenAddress)

	t.Setenv("CONFIG", "relay:\n  listen: \":7001\"\n")
	loaded, err = config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7001", loaded.Relay.ListenAddress)

	t.Setenv("CONFIG", "")
	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
