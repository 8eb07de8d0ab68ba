package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Meter holds the adapter metrics. A nil *Meter records nothing.
type Meter struct {
	RecordsReceived    metric.Int64Counter
	SubmissionFailures metric.Int64Counter
	ResultsEmitted     metric.Int64Counter
	ProcessingDuration metric.Float64Histogram

	component string
	adapter   string
}

// ConfigureMeter installs the OTLP meter provider and returns the adapter
// metrics, or nil when metrics are disabled.
func ConfigureMeter(cfg *Config) *Meter {
	if !cfg.MetricsEnabled {
		return nil
	}

	ctx := context.Background()

	// endpoint comes from OTEL_EXPORTER_OTLP_ENDPOINT
	exporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		slog.Error("Failed to create OTLP metrics exporter", "error", err)
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(cfg.resourceAttributes()...))
	if err != nil {
		slog.Error("Failed to create resource", "error", err)
		return nil
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
	)
	otel.SetMeterProvider(meterProvider)

	return NewMeter(otel.GetMeterProvider().Meter("glassflow-cep"), cfg.ServiceName, cfg.AdapterName)
}

func NewMeter(meter metric.Meter, component, adapter string) *Meter {
	return &Meter{
		RecordsReceived: mustCreateCounter(meter, "glassflow_cep_records_received_total",
			"Total number of records received from upstream sources"),
		SubmissionFailures: mustCreateCounter(meter, "glassflow_cep_submission_failures_total",
			"Total number of records the engine failed to process"),
		ResultsEmitted: mustCreateCounter(meter, "glassflow_cep_results_emitted_total",
			"Total number of result records emitted on output channels"),
		ProcessingDuration: mustCreateHistogram(meter, "glassflow_cep_processing_duration_seconds",
			"Record processing duration in seconds"),
		component: component,
		adapter:   adapter,
	}
}

func (m *Meter) attrs(extra ...attribute.KeyValue) metric.MeasurementOption {
	kv := append([]attribute.KeyValue{
		attribute.String("component", m.component),
		attribute.String("adapter", m.adapter),
	}, extra...)
	return metric.WithAttributes(kv...)
}

func (m *Meter) RecordReceived(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.RecordsReceived.Add(ctx, 1, m.attrs(attribute.String("event_type", eventType)))
}

func (m *Meter) RecordSubmissionFailure(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.SubmissionFailures.Add(ctx, 1, m.attrs(attribute.String("event_type", eventType)))
}

func (m *Meter) RecordEmitted(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.ResultsEmitted.Add(ctx, 1, m.attrs(attribute.String("channel", channel)))
}

func (m *Meter) RecordProcessingDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessingDuration.Record(ctx, d.Seconds(), m.attrs())
}

func mustCreateCounter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(
		name,
		metric.WithDescription(description),
		metric.WithUnit("1"),
	)
	if err != nil {
		slog.Error("Failed to create counter", "name", name, "error", err)
		panic(fmt.Sprintf("failed to create counter %s: %v", name, err))
	}
	return counter
}

func mustCreateHistogram(meter metric.Meter, name, description string) metric.Float64Histogram {
	histogram, err := meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Error("Failed to create histogram", "name", name, "error", err)
		panic(fmt.Sprintf("failed to create histogram %s: %v", name, err))
	}
	return histogram
}
