package adapter

import (
	"fmt"
	"slices"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// Registry registers every upstream source as an engine event type sharing the
// adapter event schema.
type Registry struct {
	schema models.EventSchema
	cfg    engine.Configuration

	registered map[string][]string
}

func NewRegistry(schema models.EventSchema, cfg engine.Configuration) *Registry {
	return &Registry{
		schema:     schema,
		cfg:        cfg,
		registered: make(map[string][]string),
	}
}

// RegisterSource validates that the source declares every schema field and
// registers the schema under the source event type name. Registering the same
// source again returns the same name.
func (r *Registry) RegisterSource(componentID, streamID string, fields []string) (string, error) {
	if componentID == "" {
		return "", models.ConfigurationError{Msg: "source component id cannot be empty"}
	}
	if streamID == "" {
		streamID = models.DefaultStreamID
	}

	name := models.EventTypeName(componentID, streamID)
	if _, ok := r.registered[name]; ok {
		return name, nil
	}

	if missing := r.schema.Missing(fields); len(missing) > 0 {
		return "", models.ConfigurationError{
			Msg: fmt.Sprintf("source %s is missing fields %v", name, missing),
			Err: models.SchemaMismatchError{
				EventType:    name,
				SchemaFields: r.schema.Names(),
				SourceFields: slices.Clone(fields),
			},
		}
	}

	if err := r.cfg.AddEventType(name, r.schema); err != nil {
		return "", models.ConfigurationError{Msg: "register event type " + name, Err: err}
	}
	r.registered[name] = slices.Clone(fields)

	return name, nil
}

// EventTypes returns the registered event type names in sorted order.
func (r *Registry) EventTypes() []string {
	names := make([]string, 0, len(r.registered))
	for name := range r.registered {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
