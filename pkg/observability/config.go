package observability

import (
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config describes how an adapter process logs and exports telemetry.
type Config struct {
	LogFormat    string
	LogLevel     slog.Level
	LogAddSource bool

	// OtelObservability exports logs over OTLP, MetricsEnabled exports the
	// adapter metrics. Both read the endpoint from the OTEL_* environment.
	OtelObservability bool
	MetricsEnabled    bool

	ServiceName      string
	ServiceVersion   string
	ServiceNamespace string

	// AdapterName is only known once the adapter definition is loaded, so it
	// is empty on the logs of an API-only process.
	AdapterName string
}

// resourceAttributes identifies the process on exported logs and metrics.
func (c *Config) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(c.ServiceName),
		semconv.ServiceVersionKey.String(c.ServiceVersion),
	}

	if c.ServiceNamespace != "" {
		attrs = append(attrs, semconv.ServiceNamespaceKey.String(c.ServiceNamespace))
	}
	if c.AdapterName != "" {
		attrs = append(attrs, attribute.String("adapter", c.AdapterName))
	}

	return attrs
}
