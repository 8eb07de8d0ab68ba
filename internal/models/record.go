package models

import (
	"fmt"
	"slices"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	EventTypeSeparator = "_"
	DefaultStreamID    = "default"
)

// EventTypeName derives the engine event type name of an upstream source.
func EventTypeName(componentID, streamID string) string {
	return componentID + EventTypeSeparator + streamID
}

// SourceBinding describes an upstream source and the fields it emits.
type SourceBinding struct {
	ComponentID string
	StreamID    string
	Fields      []string
}

func (b SourceBinding) EventTypeName() string {
	return EventTypeName(b.ComponentID, b.StreamID)
}

// Record is a single upstream tuple: ordered field names with their values and
// the identity of the source that produced it.
//
// The original references (JetstreamMsgOriginal, FranzKafkaOriginal) keep the
// transport message intact for acknowledgement and are never modified while
// the record is processed.
type Record struct {
	SourceComponent string
	SourceStream    string
	Fields          []string
	Values          []any

	JetstreamMsgOriginal jetstream.Msg
	FranzKafkaOriginal   *kgo.Record
}

func NewRecord(component, stream string, fields []string, values []any) (zero Record, _ error) {
	if component == "" {
		return zero, fmt.Errorf("record source component cannot be empty")
	}
	if stream == "" {
		return zero, fmt.Errorf("record source stream cannot be empty")
	}
	if len(fields) != len(values) {
		return zero, fmt.Errorf("record has %d fields but %d values", len(fields), len(values))
	}

	return Record{
		SourceComponent: component,
		SourceStream:    stream,
		Fields:          fields,
		Values:          values,
	}, nil
}

func (r Record) EventTypeName() string {
	return EventTypeName(r.SourceComponent, r.SourceStream)
}

func (r Record) Value(field string) (any, bool) {
	i := slices.Index(r.Fields, field)
	if i < 0 || i >= len(r.Values) {
		return nil, false
	}
	return r.Values[i], true
}
