package cep

import (
	"fmt"
	"slices"
	"time"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// eventType is a named set of properties. Types registered from a schema carry
// field types; types derived from insert-into statements do not.
type eventType struct {
	name       string
	properties []string
	types      map[string]models.FieldType
}

func newSchemaType(name string, schema models.EventSchema) *eventType {
	types := make(map[string]models.FieldType, schema.Len())
	for _, f := range schema.Fields() {
		types[f.Name] = f.Type
	}

	return &eventType{
		name:       name,
		properties: schema.Names(),
		types:      types,
	}
}

func (t *eventType) Name() string {
	return t.name
}

func (t *eventType) PropertyNames() []string {
	return slices.Clone(t.properties)
}

func (t *eventType) fieldType(property string) models.FieldType {
	if ft, ok := t.types[property]; ok {
		return ft
	}
	return models.FieldTypeAny
}

// env declares the properties of this type to the expression compiler.
func (t *eventType) env() exprEnv {
	env := newExprEnv()
	for _, p := range t.properties {
		env.declare(p, zeroValue(t.fieldType(p)))
	}
	return env
}

func zeroValue(ft models.FieldType) any {
	switch ft {
	case models.FieldTypeString:
		return ""
	case models.FieldTypeInt:
		return 0
	case models.FieldTypeLong:
		return int64(0)
	case models.FieldTypeDouble, models.FieldTypeFloat:
		return float64(0)
	case models.FieldTypeBool:
		return false
	case models.FieldTypeTimestamp:
		return time.Time{}
	case models.FieldTypeBytes:
		return []byte{}
	default:
		return nil
	}
}

type typeRegistry struct {
	types map[string]*eventType
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{types: make(map[string]*eventType)}
}

func (r *typeRegistry) get(name string) (*eventType, bool) {
	t, ok := r.types[name]
	return t, ok
}

func (r *typeRegistry) add(t *eventType) error {
	if _, ok := r.types[t.name]; ok {
		return fmt.Errorf("event type %s is already registered", t.name)
	}
	r.types[t.name] = t
	return nil
}

// derive returns the stream type an insert-into statement writes to, creating
// it on first use. An existing type is reused only when the properties match.
func (r *typeRegistry) derive(name string, properties []string, types map[string]models.FieldType) (*eventType, error) {
	if existing, ok := r.types[name]; ok {
		if !slices.Equal(existing.properties, properties) {
			return nil, fmt.Errorf(
				"event type %s already exists with properties %v, statement produces %v",
				name, existing.properties, properties,
			)
		}
		return existing, nil
	}

	t := &eventType{name: name, properties: slices.Clone(properties), types: types}
	r.types[name] = t

	return t, nil
}

type eventBean struct {
	typ    *eventType
	values map[string]any
}

var _ engine.EventBean = (*eventBean)(nil)

func (b *eventBean) EventType() engine.EventType {
	return b.typ
}

func (b *eventBean) Get(property string) any {
	return b.values[property]
}
