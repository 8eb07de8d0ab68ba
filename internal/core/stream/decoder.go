package stream

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tidwall/gjson"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/models"
)

var (
	ErrInvalidPayload = errors.New("invalid message payload")
	ErrUnknownSource  = errors.New("message does not belong to a declared source")
)

// Route binds an input subject to the upstream source publishing on it.
type Route struct {
	Subject string
	Source  models.SourceBinding
}

// RecordDecoder turns JetStream messages into records. The source is taken
// from the component and stream headers when present, otherwise from the
// subject the message was published on.
type RecordDecoder struct {
	bySubject map[string]models.SourceBinding
	byType    map[string]models.SourceBinding
}

func NewRecordDecoder(routes []Route) *RecordDecoder {
	d := &RecordDecoder{
		bySubject: make(map[string]models.SourceBinding, len(routes)),
		byType:    make(map[string]models.SourceBinding, len(routes)),
	}
	for _, r := range routes {
		d.bySubject[r.Subject] = r.Source
		d.byType[r.Source.EventTypeName()] = r.Source
	}
	return d
}

// Subjects lists the subjects the decoder accepts.
func (d *RecordDecoder) Subjects() []string {
	return slices.Sorted(maps.Keys(d.bySubject))
}

func (d *RecordDecoder) Decode(msg jetstream.Msg) (models.Record, error) {
	rec, err := d.decode(msg.Subject(), msg.Headers(), msg.Data())
	if err != nil {
		return rec, err
	}
	rec.JetstreamMsgOriginal = msg
	return rec, nil
}

func (d *RecordDecoder) decode(subject string, header nats.Header, data []byte) (zero models.Record, _ error) {
	src, err := d.source(subject, header)
	if err != nil {
		return zero, err
	}

	values, err := DecodeValues(src.Fields, data)
	if err != nil {
		return zero, err
	}

	return models.NewRecord(src.ComponentID, src.StreamID, src.Fields, values)
}

func (d *RecordDecoder) source(subject string, header nats.Header) (models.SourceBinding, error) {
	if component := header.Get(internal.ComponentHeader); component != "" {
		streamID := header.Get(internal.StreamHeader)
		if streamID == "" {
			streamID = models.DefaultStreamID
		}

		name := models.EventTypeName(component, streamID)
		src, ok := d.byType[name]
		if !ok {
			return src, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		return src, nil
	}

	src, ok := d.bySubject[subject]
	if !ok {
		return src, fmt.Errorf("%w: subject %s", ErrUnknownSource, subject)
	}
	return src, nil
}

// DecodeValues reads the field values from a JSON object by name, or from a
// JSON array by position. Absent fields and JSON nulls decode to nil.
func DecodeValues(fields []string, data []byte) ([]any, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid json", ErrInvalidPayload)
	}

	parsed := gjson.ParseBytes(data)
	values := make([]any, len(fields))

	switch {
	case parsed.IsObject():
		for i, f := range fields {
			values[i] = resultValue(parsed.Get(f))
		}
	case parsed.IsArray():
		items := parsed.Array()
		if len(items) != len(fields) {
			return nil, fmt.Errorf("%w: got %d values for %d fields", ErrInvalidPayload, len(items), len(fields))
		}
		for i, item := range items {
			values[i] = resultValue(item)
		}
	default:
		return nil, fmt.Errorf("%w: expected an object or an array", ErrInvalidPayload)
	}

	return values, nil
}

func resultValue(r gjson.Result) any {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return r.Value()
}
