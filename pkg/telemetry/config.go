package telemetry

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid telemetry config")

// Telemetry is disabled when neither exporter is configured.
type Config struct {
	// Use OTLP exporter. Has precedence over the Jaeger configuration.
	OTLP OTLP `yaml:"otlp"`
	// The URL to the Jaeger collector.
	JaegerURL string `yaml:"jaegerUrl"`
	// Service name reported with the spans, "tandem" if empty.
	Package string `yaml:"package"`
	// ID of the service instance, random if empty.
	ID string `yaml:"id"`
}

type OTLP struct {
	// host[:port] of the collector, without scheme or path.
	Host string `yaml:"host"`
	// HTTPS is used if enabled, HTTP otherwise.
	Secure bool `yaml:"secure"`
}

func (c Config) Enabled() bool {
	return c.OTLP.Host != "" || c.JaegerURL != ""
}

func (c Config) Validate() error {
	if host := c.OTLP.Host; host != "" && strings.ContainsAny(host, "/?#") {
		return fmt.Errorf("%w: otlp host %q must not contain a scheme or a path", ErrInvalidConfig, host)
	}

	if c.JaegerURL != "" {
		parsed, err := url.Parse(c.JaegerURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: jaeger url %q is not absolute", ErrInvalidConfig, c.JaegerURL)
		}
	}

	return nil
}
