package models

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInt       FieldType = "int"
	FieldTypeLong      FieldType = "long"
	FieldTypeDouble    FieldType = "double"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeBytes     FieldType = "bytes"
	FieldTypeAny       FieldType = "any"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeInt, FieldTypeLong, FieldTypeDouble, FieldTypeFloat,
		FieldTypeBool, FieldTypeTimestamp, FieldTypeBytes, FieldTypeAny:
		return true
	default:
		return false
	}
}

func (t FieldType) String() string {
	return string(t)
}

type Field struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
}

// EventSchema is the ordered set of typed fields shared by every event type the
// adapter registers. The zero value is an unset schema.
type EventSchema struct {
	fields []Field
	index  map[string]int
}

// NewEventSchema builds a schema from a name to type mapping. Fields are ordered
// by name so the schema enumerates deterministically.
func NewEventSchema(types map[string]FieldType) (zero EventSchema, _ error) {
	if types == nil {
		return zero, ConfigurationError{Msg: "event types cannot be null"}
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	slices.Sort(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{Name: name, Type: types[name]})
	}

	return NewEventSchemaFromFields(fields)
}

// NewEventSchemaFromFields builds a schema keeping the declaration order.
func NewEventSchemaFromFields(fields []Field) (zero EventSchema, _ error) {
	if len(fields) == 0 {
		return zero, ConfigurationError{Msg: "event types cannot be empty"}
	}

	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return zero, ConfigurationError{Msg: fmt.Sprintf("event type field %d has an empty name", i)}
		}
		if !f.Type.Valid() {
			return zero, ConfigurationError{Msg: fmt.Sprintf("unsupported type %q for field %s", f.Type, f.Name)}
		}
		if _, ok := index[f.Name]; ok {
			return zero, ConfigurationError{Msg: fmt.Sprintf("duplicate event type field %s", f.Name)}
		}
		index[f.Name] = i
	}

	return EventSchema{
		fields: slices.Clone(fields),
		index:  index,
	}, nil
}

func (s EventSchema) IsZero() bool {
	return len(s.fields) == 0
}

func (s EventSchema) Len() int {
	return len(s.fields)
}

func (s EventSchema) Fields() []Field {
	return slices.Clone(s.fields)
}

func (s EventSchema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s EventSchema) Type(name string) (FieldType, bool) {
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.fields[i].Type, true
}

func (s EventSchema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Missing returns the schema fields absent from the given field list, in schema order.
func (s EventSchema) Missing(fields []string) []string {
	present := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		present[f] = struct{}{}
	}

	var missing []string
	for _, f := range s.fields {
		if _, ok := present[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// SchemaExtractor derives an EventSchema from a data-carrying value.
type SchemaExtractor func(v any) (EventSchema, error)

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// SchemaFromStruct is a SchemaExtractor reading the exported fields of a struct
// (or pointer to struct). The field name comes from the `cep` tag, then the
// `json` tag, then the Go field name. Fields tagged "-" are skipped.
func SchemaFromStruct(v any) (zero EventSchema, _ error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return zero, ConfigurationError{Msg: fmt.Sprintf("schema source must be a struct, got %T", v)}
	}

	fields := make([]Field, 0, t.NumField())
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name := fieldName(sf)
		if name == "-" {
			continue
		}

		fields = append(fields, Field{Name: name, Type: fieldTypeOf(sf.Type)})
	}

	return NewEventSchemaFromFields(fields)
}

func fieldName(sf reflect.StructField) string {
	for _, key := range []string{"cep", "json"} {
		tag, ok := sf.Tag.Lookup(key)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}
	return sf.Name
}

func fieldTypeOf(t reflect.Type) FieldType {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return FieldTypeTimestamp
	case t == bytesType:
		return FieldTypeBytes
	}

	switch t.Kind() {
	case reflect.String:
		return FieldTypeString
	case reflect.Bool:
		return FieldTypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return FieldTypeInt
	case reflect.Int64, reflect.Uint64:
		return FieldTypeLong
	case reflect.Float32:
		return FieldTypeFloat
	case reflect.Float64:
		return FieldTypeDouble
	default:
		return FieldTypeAny
	}
}
