package cep

import (
	"fmt"
	"strings"
	"sync"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// Configuration holds the event types a provider starts with.
type Configuration struct {
	mu    sync.Mutex
	names []string
	types map[string]models.EventSchema
}

var _ engine.Configuration = (*Configuration)(nil)

func NewConfiguration() *Configuration {
	return &Configuration{types: make(map[string]models.EventSchema)}
}

func (c *Configuration) AddEventType(name string, schema models.EventSchema) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("event type name cannot be empty")
	}
	if schema.IsZero() {
		return fmt.Errorf("event type %s: schema cannot be empty", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.types[name]; ok {
		return fmt.Errorf("event type %s is already registered", name)
	}

	c.names = append(c.names, name)
	c.types[name] = schema

	return nil
}

// EventTypes returns the registered names in registration order.
func (c *Configuration) EventTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Configuration) registry() *typeRegistry {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := newTypeRegistry()
	for _, name := range c.names {
		// names are unique, add cannot fail
		_ = r.add(newSchemaType(name, c.types[name]))
	}
	return r
}
