package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const PACKAGE = "tandem"

// Attribute keys shared by the relay and the peers so that the spans of both sides
// of a room can be correlated.
const (
	RoomKey     = attribute.Key("tandem.room")
	EndpointKey = attribute.Key("tandem.endpoint")
	PeerKey     = attribute.Key("tandem.peer")
	RoleKey     = attribute.Key("tandem.role")
)

var tracer = otel.Tracer(PACKAGE)

// A span together with the context it lives in.
type Telemetry struct {
	span    trace.Span
	context context.Context //nolint:containedctx
}

func NewTelemetry(ctx context.Context, name string, attributes ...attribute.KeyValue) *Telemetry {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attributes...))

	return &Telemetry{
		span:    span,
		context: ctx,
	}
}

// Creates a child span. A nil receiver starts a new root span instead.
func (t *Telemetry) CreateChild(name string, attributes ...attribute.KeyValue) *Telemetry {
	if t == nil {
		return NewTelemetry(context.Background(), name, attributes...)
	}

	return NewTelemetry(t.context, name, attributes...)
}

func (t *Telemetry) AddEvent(text string, attributes ...attribute.KeyValue) {
	t.span.AddEvent(text, trace.WithAttributes(attributes...))
}

func (t *Telemetry) AddError(err error) {
	t.span.RecordError(err)
}

func (t *Telemetry) Fail(err error) {
	t.span.SetStatus(codes.Error, err.Error())
	t.AddError(err)
}

func (t *Telemetry) End() {
	t.span.End()
}
