// Package host declares what the adapter needs from the stream-processing
// runtime that embeds it.
package host

import (
	"context"
	"slices"

	"github.com/glassflow/glassflow-cep/internal/models"
)

// TaskContext exposes the upstream sources wired to the task.
type TaskContext interface {
	Sources() []models.SourceBinding
}

type Emitter interface {
	// Emit sends a projected record on an output channel.
	Emit(ctx context.Context, channel string, values []any) error
}

type Acker interface {
	Ack(ctx context.Context, rec models.Record) error
}

type Collector interface {
	Emitter
	Acker
}

type StaticTask []models.SourceBinding

func (t StaticTask) Sources() []models.SourceBinding {
	return slices.Clone(t)
}

type collector struct {
	Emitter
	Acker
}

// NewCollector composes a Collector from separate emitting and acknowledging parts.
func NewCollector(e Emitter, a Acker) Collector {
	return collector{Emitter: e, Acker: a}
}
