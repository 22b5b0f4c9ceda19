package telemetry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var ErrNoExporter = errors.New("neither OTLP nor Jaeger is configured")

// Configures OpenTelemetry for the service. OTLP has precedence over Jaeger.
func SetupTelemetry(ctx context.Context, config Config) (*tracesdk.TracerProvider, error) {
	if !config.Enabled() {
		return nil, ErrNoExporter
	}

	if config.Package == "" {
		config.Package = PACKAGE
	}

	// Create a new resource.
	res, err := NewResource(config)
	if err != nil {
		return nil, err
	}

	var exp tracesdk.SpanExporter
	switch {
	case config.OTLP.Host != "":
		exp, err = NewOTLPExporter(ctx, config.OTLP)
	default:
		exp, err = NewJaegerExporter(config.JaegerURL)
	}

	if err != nil {
		return nil, err
	}

	// Create a new trace provider.
	tp := NewTracerProvider(exp, res)

	// Set the trace provider as the global trace provider.
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(config.Package)

	// Context propagation for the OpenTelemetry SDK.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// Creates a trace provider that batches all spans to the exporter on behalf of our service.
func NewTracerProvider(exp tracesdk.SpanExporter, res *resource.Resource) *tracesdk.TracerProvider {
	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)
}

// Creates Jaeger exporter.
func NewJaegerExporter(url string) (*jaeger.Exporter, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}

	return exp, nil
}

// Creates an exporter that talks OTLP over HTTP.
func NewOTLPExporter(ctx context.Context, config OTLP) (tracesdk.SpanExporter, error) {
	options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Host)}
	if !config.Secure {
		options = append(options, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(ctx, options...)
}

// Creates a new resource to identify the service instance.
func NewResource(config Config) (*resource.Resource, error) {
	id := config.ID
	if id == "" {
		random, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}
		id = random.String()
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.Package),
		attribute.String("ID", id),
	), nil
}
