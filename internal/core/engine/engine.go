// Package engine declares the contract between the adapter and a continuous
// query evaluation engine.
package engine

import "github.com/glassflow/glassflow-cep/internal/models"

type EventType interface {
	Name() string
	// PropertyNames enumerates the properties in the event's natural order.
	PropertyNames() []string
}

// EventBean is a single event produced by the engine.
type EventBean interface {
	EventType() EventType
	// Get returns the property value, nil when it is null or unknown.
	Get(property string) any
}

// UpdateListener receives the result events of a statement. newEvents holds the
// inserted results, oldEvents the retracted ones; either may be nil.
type UpdateListener interface {
	Update(newEvents, oldEvents []EventBean) error
}

type UpdateListenerFunc func(newEvents, oldEvents []EventBean) error

func (f UpdateListenerFunc) Update(newEvents, oldEvents []EventBean) error {
	return f(newEvents, oldEvents)
}

type Statement interface {
	Name() string
	Text() string
	AddListener(listener UpdateListener)
}

// Configuration collects the event types known to a provider before it is created.
type Configuration interface {
	AddEventType(name string, schema models.EventSchema) error
	EventTypes() []string
}

type Provider interface {
	Initialize() error
	// Destroy releases the provider; calling it more than once is a no-op.
	Destroy() error
	IsDestroyed() bool

	// Prepare checks the statement syntax without activating it.
	Prepare(query string) error
	CompileAndActivate(spec models.StatementSpec) (Statement, error)
	SendEvent(event map[string]any, typeName string) error
}

type Factory interface {
	NewConfiguration() Configuration
	NewProvider(cfg Configuration) (Provider, error)
}
