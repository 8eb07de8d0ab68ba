package component

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/pkg/observability"
)

// Source reads records from a transport. Rejected records are handed back
// to the transport for redelivery when it supports it.
type Source interface {
	Read(ctx context.Context) ([]models.Record, error)
	Reject(ctx context.Context, rec models.Record) error
}

type RecordProcessor interface {
	Process(ctx context.Context, rec models.Record) error
}

type shutdown struct {
	cancel    context.CancelFunc
	requested bool
	doneCh    chan struct{}
}

// Runner pulls records from a source and submits them one at a time.
type Runner struct {
	source    Source
	processor RecordProcessor
	meter     *observability.Meter
	log       *slog.Logger
	shutdown  shutdown
	mu        sync.Mutex
}

func NewRunner(source Source, processor RecordProcessor, meter *observability.Meter, log *slog.Logger) *Runner {
	return &Runner{
		source:    source,
		processor: processor,
		meter:     meter,
		log:       log,
		shutdown: shutdown{
			doneCh: make(chan struct{}),
		},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.log.InfoContext(ctx, "runner started")
	defer r.log.InfoContext(ctx, "runner stopped")
	defer close(r.shutdown.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.shutdown.cancel = cancel
	if r.shutdown.requested {
		cancel()
	}
	r.mu.Unlock()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			err := r.poll(ctx)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				continue
			case models.IsAdapterNotActiveErr(err):
				r.log.ErrorContext(ctx, "adapter is not active, exiting")
				return err
			default:
				r.log.ErrorContext(ctx, "read failed", slog.Any("error", err))
				select {
				case <-ctx.Done():
				case <-time.After(internal.FetchRetryDelay):
				}
			}
		}
	}
}

func (r *Runner) poll(ctx context.Context) error {
	records, err := r.source.Read(ctx)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	for _, rec := range records {
		if err := r.handle(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) handle(ctx context.Context, rec models.Record) error {
	eventType := rec.EventTypeName()
	r.meter.RecordReceived(ctx, eventType)

	start := time.Now()
	err := r.processor.Process(ctx, rec)
	r.meter.RecordProcessingDuration(ctx, time.Since(start))

	if err == nil {
		return nil
	}
	if models.IsAdapterNotActiveErr(err) {
		return err
	}

	r.meter.RecordSubmissionFailure(ctx, eventType)
	r.log.ErrorContext(ctx, "failed to process record",
		slog.String("event_type", eventType),
		slog.Any("error", err))

	if rejectErr := r.source.Reject(ctx, rec); rejectErr != nil {
		r.log.ErrorContext(ctx, "failed to reject record", slog.Any("error", rejectErr))
	}

	return nil
}

func (r *Runner) Done() <-chan struct{} {
	return r.shutdown.doneCh
}

// Shutdown stops the runner after the record in flight is handled.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shutdown.requested = true
	if r.shutdown.cancel != nil {
		r.shutdown.cancel()
	}
}

type meteredEmitter struct {
	next  host.Emitter
	meter *observability.Meter
}

// MeteredEmitter counts every result emitted through next.
func MeteredEmitter(next host.Emitter, meter *observability.Meter) host.Emitter {
	if meter == nil {
		return next
	}
	return meteredEmitter{next: next, meter: meter}
}

func (e meteredEmitter) Emit(ctx context.Context, channel string, values []any) error {
	if err := e.next.Emit(ctx, channel, values); err != nil {
		return err
	}
	e.meter.RecordEmitted(ctx, channel)
	return nil
}
