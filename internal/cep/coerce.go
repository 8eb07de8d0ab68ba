package cep

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/glassflow/glassflow-cep/internal/models"
)

// coerce converts a submitted property map to the declared types of t. Unknown
// properties are dropped and missing ones are set to nil.
func coerce(t *eventType, raw map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(t.properties))

	for _, p := range t.properties {
		v, ok := raw[p]
		if !ok || v == nil {
			values[p] = nil
			continue
		}

		cv, err := coerceValue(t.fieldType(p), v)
		if err != nil {
			return nil, fmt.Errorf("property %s of %s: %w", p, t.name, err)
		}
		values[p] = cv
	}

	return values, nil
}

func coerceValue(ft models.FieldType, v any) (any, error) {
	switch ft {
	case models.FieldTypeString:
		return cast.ToStringE(v)
	case models.FieldTypeInt:
		return cast.ToIntE(v)
	case models.FieldTypeLong:
		return cast.ToInt64E(v)
	case models.FieldTypeDouble, models.FieldTypeFloat:
		return cast.ToFloat64E(v)
	case models.FieldTypeBool:
		return cast.ToBoolE(v)
	case models.FieldTypeTimestamp:
		return cast.ToTimeE(v)
	case models.FieldTypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
		}
	default:
		return v, nil
	}
}
