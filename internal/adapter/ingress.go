package adapter

import (
	"context"
	"fmt"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/models"
)

type IngressRouter struct {
	provider engine.Provider
	acker    host.Acker
}

func NewIngressRouter(provider engine.Provider, acker host.Acker) *IngressRouter {
	return &IngressRouter{
		provider: provider,
		acker:    acker,
	}
}

// OnRecord submits the record to the engine under its source event type and
// acknowledges it. A failed submission is not acknowledged. Results may be
// routed before OnRecord returns.
func (r *IngressRouter) OnRecord(ctx context.Context, rec models.Record) error {
	eventType := rec.EventTypeName()

	if len(rec.Fields) != len(rec.Values) {
		return models.SubmissionError{
			EventType: eventType,
			Err:       fmt.Errorf("record has %d fields but %d values", len(rec.Fields), len(rec.Values)),
		}
	}

	event := make(map[string]any, len(rec.Fields))
	for i, field := range rec.Fields {
		event[field] = rec.Values[i]
	}

	if err := r.provider.SendEvent(event, eventType); err != nil {
		return models.SubmissionError{EventType: eventType, Err: err}
	}

	if err := r.acker.Ack(ctx, rec); err != nil {
		return fmt.Errorf("ack record: %w", err)
	}

	return nil
}
