package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glassflow/glassflow-cep/internal/adapter"
	"github.com/glassflow/glassflow-cep/internal/component"
	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/core/stream"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/kafka"
	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/pkg/observability"
)

// Pipeline runs a started adapter behind a transport source. Results are
// always published to the NATS output stream.
type Pipeline struct {
	adapter  *adapter.Adapter
	runner   *component.Runner
	failures *ListenerFailures
	closers  []func() error
	log      *slog.Logger
}

type PipelineDeps struct {
	NATS    *stream.NATSClient
	Factory engine.Factory
	Meter   *observability.Meter
	Log     *slog.Logger

	// Failures receives result delivery errors of an engine dispatching on
	// its own goroutine. Nil when delivery is inline.
	Failures *ListenerFailures
}

var ErrResultDelivery = errors.New("result delivery failed")

// ListenerFailures carries listener errors raised off the submitting
// goroutine to the pipeline. Only the first error is kept.
type ListenerFailures struct {
	ch chan error
}

func NewListenerFailures() *ListenerFailures {
	return &ListenerFailures{ch: make(chan error, 1)}
}

// Report matches the engine listener error handler signature.
func (f *ListenerFailures) Report(statement string, err error) {
	select {
	case f.ch <- fmt.Errorf("%w: statement %q: %w", ErrResultDelivery, statement, err):
	default:
	}
}

func (f *ListenerFailures) notify() <-chan error {
	if f == nil {
		return nil
	}
	return f.ch
}

// NewNATSPipeline consumes the sources from the NATS input stream, one subject
// per source.
func NewNATSPipeline(ctx context.Context, deps PipelineDeps, cfg models.AdapterConfig) (*Pipeline, error) {
	cfg = cfg.WithDefaults()

	bindings, err := cfg.Bindings()
	if err != nil {
		return nil, err
	}

	routes := make([]stream.Route, len(cfg.Sources))
	for i, s := range cfg.Sources {
		routes[i] = stream.Route{Subject: s.Subject, Source: bindings[i]}
	}
	decoder := stream.NewRecordDecoder(routes)

	err = deps.NATS.CreateOrUpdateStream(ctx, cfg.NATS.InputStream, decoder.Subjects()...)
	if err != nil {
		return nil, fmt.Errorf("create input stream: %w", err)
	}

	consumer, err := stream.NewNATSConsumer(ctx, deps.NATS.JetStream(), stream.ConsumerConfig{
		Stream:         cfg.NATS.InputStream,
		Name:           cfg.NATS.ConsumerName,
		FilterSubjects: decoder.Subjects(),
		AckWait:        cfg.NATS.AckWait.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("create input consumer: %w", err)
	}

	emitter, err := newChannelEmitter(ctx, deps, cfg)
	if err != nil {
		return nil, err
	}

	source := stream.NewSource(consumer, decoder, deps.Log)
	collector := host.NewCollector(emitter, stream.MsgAcker{})

	return newPipeline(ctx, deps, cfg, bindings, source, collector, nil)
}

// NewKafkaPipeline consumes the sources from Kafka, one topic per source.
func NewKafkaPipeline(ctx context.Context, deps PipelineDeps, cfg models.AdapterConfig) (*Pipeline, error) {
	cfg = cfg.WithDefaults()

	if _, err := cfg.Bindings(); err != nil {
		return nil, err
	}

	source, err := kafka.NewSource(cfg.Kafka, cfg.Sources, deps.Log)
	if err != nil {
		return nil, fmt.Errorf("create kafka source: %w", err)
	}

	emitter, err := newChannelEmitter(ctx, deps, cfg)
	if err != nil {
		source.Close()
		return nil, err
	}

	collector := host.NewCollector(emitter, source)

	p, err := newPipeline(ctx, deps, cfg, source.Bindings(), source, collector, []func() error{source.Close})
	if err != nil {
		source.Close()
		return nil, err
	}

	return p, nil
}

func newChannelEmitter(ctx context.Context, deps PipelineDeps, cfg models.AdapterConfig) (host.Emitter, error) {
	prefix := cfg.NATS.OutputSubjectPrefix

	err := deps.NATS.CreateOrUpdateStream(ctx, cfg.NATS.OutputStream, prefix+".>")
	if err != nil {
		return nil, fmt.Errorf("create output stream: %w", err)
	}

	publisher := stream.NewChannelPublisher(deps.NATS.JetStream(), prefix)

	return component.MeteredEmitter(publisher, deps.Meter), nil
}

func newPipeline(
	ctx context.Context,
	deps PipelineDeps,
	cfg models.AdapterConfig,
	bindings []models.SourceBinding,
	source component.Source,
	collector host.Collector,
	closers []func() error,
) (*Pipeline, error) {
	a, err := BuildAdapter(deps.Factory, cfg, deps.Log)
	if err != nil {
		return nil, err
	}

	if err := a.Start(ctx, host.StaticTask(bindings), collector); err != nil {
		return nil, fmt.Errorf("start adapter: %w", err)
	}

	return &Pipeline{
		adapter:  a,
		runner:   component.NewRunner(source, a, deps.Meter, deps.Log),
		failures: deps.Failures,
		closers:  closers,
		log:      deps.Log,
	}, nil
}

func (p *Pipeline) Adapter() *adapter.Adapter {
	return p.adapter
}

// Run blocks until the pipeline is shut down, the adapter stops or a
// listener fails to deliver results. A delivery failure stops the runner and
// is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	runErr := make(chan error, 1)
	go func() {
		runErr <- p.runner.Start(ctx)
	}()

	select {
	case err := <-runErr:
		return err
	case err := <-p.failures.notify():
		p.log.ErrorContext(ctx, "stopping runner after delivery failure", slog.Any("error", err))
		p.runner.Shutdown()
		<-runErr
		return err
	}
}

// Shutdown waits for the record in flight, then stops the adapter and closes
// the source.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.runner.Shutdown()

	select {
	case <-p.runner.Done():
	case <-ctx.Done():
		p.log.WarnContext(ctx, "runner did not stop in time")
	}

	errs := []error{p.adapter.Stop()}
	for _, c := range p.closers {
		errs = append(errs, c())
	}

	return errors.Join(errs...)
}
