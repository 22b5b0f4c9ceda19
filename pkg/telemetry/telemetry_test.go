package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
)

func TestSetupWithoutExporter(t *testing.T) {
	_, err := telemetry.SetupTelemetry(context.Background(), telemetry.Config{})
	assert.ErrorIs(t, err, telemetry.ErrNoExporter)
}

func TestResourceKeepsConfiguredID(t *testing.T) {
	res, err := telemetry.NewResource(telemetry.Config{Package: "tandem", ID: "relay-1"})
	require.NoError(t, err)

	value, found := res.Set().Value("ID")
	require.True(t, found)
	assert.Equal(t, "relay-1", value.AsString())
}

func TestSpansWithoutProvider(t *testing.T) {
	// Without a provider the global no-op tracer is used.
	root := telemetry.NewTelemetry(context.Background(), "room", telemetry.RoomKey.String("42"))
	child := root.CreateChild("call")
	child.AddEvent("offer sent")
	child.Fail(errors.New("transport failed"))
	child.End()
	root.End()
}

func TestChildOfNilStartsRootSpan(t *testing.T) {
	var parent *telemetry.Telemetry

	span := parent.CreateChild("negotiation", telemetry.RoleKey.String("polite"))
	require.NotNil(t, span)
	span.AddEvent("answer sent")
	span.End()
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, telemetry.Config{}.Validate())
	assert.NoError(t, telemetry.Config{OTLP: telemetry.OTLP{Host: "collector:4318"}}.Validate())
	assert.NoError(t, telemetry.Config{JaegerURL: "http://jaeger:14268/api/traces"}.Validate())

	assert.ErrorIs(t, telemetry.Config{OTLP: telemetry.OTLP{Host: "http://collector:4318"}}.Validate(),
		telemetry.ErrInvalidConfig)
	assert.ErrorIs(t, telemetry.Config{JaegerURL: "jaeger:14268"}.Validate(), telemetry.ErrInvalidConfig)
}
