package adapter

import (
	"context"
	"fmt"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// EgressRouter is the result listener of every activated statement. It only
// reads immutable configuration, so the engine may call it from any goroutine.
type EgressRouter struct {
	ctx     context.Context
	outputs models.OutputTypeMap
	emitter host.Emitter
}

var _ engine.UpdateListener = (*EgressRouter)(nil)

func NewEgressRouter(ctx context.Context, outputs models.OutputTypeMap, emitter host.Emitter) *EgressRouter {
	return &EgressRouter{
		ctx:     context.WithoutCancel(ctx),
		outputs: outputs,
		emitter: emitter,
	}
}

// Update emits every new result event. Retracted events are not forwarded.
func (r *EgressRouter) Update(newEvents, _ []engine.EventBean) error {
	for _, ev := range newEvents {
		channel, values := r.Route(ev)
		if err := r.emitter.Emit(r.ctx, channel, values); err != nil {
			return fmt.Errorf("emit on channel %s: %w", channel, err)
		}
	}
	return nil
}

// Route resolves the channel of a result event and projects its values. A
// declared channel gets its declared fields with nil values left out; any
// other event goes to the default channel with all properties, nils included.
func (r *EgressRouter) Route(ev engine.EventBean) (string, []any) {
	typeName := ev.EventType().Name()

	if fields, ok := r.outputs.Fields(typeName); ok {
		values := make([]any, 0, len(fields))
		for _, f := range fields {
			if v := ev.Get(f); v != nil {
				values = append(values, v)
			}
		}
		return typeName, values
	}

	properties := ev.EventType().PropertyNames()
	values := make([]any, len(properties))
	for i, p := range properties {
		values[i] = ev.Get(p)
	}

	return models.DefaultChannel, values
}
