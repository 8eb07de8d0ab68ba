package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ConfigureLogger builds the process logger. With OTel enabled, records are
// exported over OTLP and still written to logOut.
func ConfigureLogger(cfg *Config, logOut io.Writer) *slog.Logger {
	if cfg.OtelObservability {
		return configureOTelLogger(cfg, logOut)
	}

	return createStandardLogger(cfg, logOut)
}

func configureOTelLogger(cfg *Config, logOut io.Writer) *slog.Logger {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(cfg.resourceAttributes()...),
	)
	if err != nil {
		slog.Error("Failed to create OTel resource, falling back to standard logging", "error", err)
		return createStandardLogger(cfg, logOut)
	}

	exporter, err := otlploghttp.New(context.Background())
	if err != nil {
		slog.Error("Failed to create OTel exporter, falling back to standard logging", "error", err)
		return createStandardLogger(cfg, logOut)
	}

	provider := log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(provider)

	otelHandler := otelslog.NewHandler(cfg.ServiceName,
		otelslog.WithLoggerProvider(provider),
	)

	return slog.New(&multiSlogHandler{
		handlers: []slog.Handler{otelHandler, createStandardHandler(cfg, logOut)},
	})
}

func createStandardLogger(cfg *Config, logOut io.Writer) *slog.Logger {
	return slog.New(createStandardHandler(cfg, logOut))
}

func createStandardHandler(cfg *Config, logOut io.Writer) slog.Handler {
	//nolint: exhaustruct // optional config
	logOpts := &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogAddSource,
	}

	switch cfg.LogFormat {
	case LogFormatJSON:
		return slog.NewJSONHandler(logOut, logOpts)
	default:
		//nolint:exhaustruct // optional config
		return tint.NewHandler(logOut, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  cfg.LogAddSource,
			TimeFormat: "15:04:05",
		})
	}
}

// multiSlogHandler fans every record out to all handlers and returns the first
// error after trying each of them.
type multiSlogHandler struct {
	handlers []slog.Handler
}

func (h *multiSlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiSlogHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *multiSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiSlogHandler{handlers: handlers}
}

func (h *multiSlogHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiSlogHandler{handlers: handlers}
}
