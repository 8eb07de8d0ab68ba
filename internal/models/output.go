package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// DefaultChannel receives every result event whose type is not declared in the
// OutputTypeMap.
const DefaultChannel = "default"

// OutputTypeMap maps output channel names to the ordered fields projected on them.
type OutputTypeMap struct {
	channels map[string][]string
}

func NewOutputTypeMap(types map[string][]string) (zero OutputTypeMap, _ error) {
	if types == nil {
		return zero, ConfigurationError{Msg: "output types cannot be null"}
	}
	if len(types) == 0 {
		return zero, ConfigurationError{Msg: "output types cannot be empty"}
	}

	channels := make(map[string][]string, len(types))
	for channel, fields := range types {
		if strings.TrimSpace(channel) == "" {
			return zero, ConfigurationError{Msg: "output channel name cannot be empty"}
		}
		if channel == DefaultChannel {
			return zero, ConfigurationError{Msg: fmt.Sprintf("output channel name %q is reserved", DefaultChannel)}
		}
		if len(fields) == 0 {
			return zero, ConfigurationError{Msg: fmt.Sprintf("output channel %s must declare at least one field", channel)}
		}

		seen := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return zero, ConfigurationError{Msg: fmt.Sprintf("output channel %s has an empty field name", channel)}
			}
			if _, ok := seen[f]; ok {
				return zero, ConfigurationError{Msg: fmt.Sprintf("output channel %s declares field %s twice", channel, f)}
			}
			seen[f] = struct{}{}
		}

		channels[channel] = slices.Clone(fields)
	}

	return OutputTypeMap{channels: channels}, nil
}

func (m OutputTypeMap) IsZero() bool {
	return len(m.channels) == 0
}

// Fields returns the declared projection for a channel. The returned slice must
// not be modified.
func (m OutputTypeMap) Fields(channel string) ([]string, bool) {
	fields, ok := m.channels[channel]
	return fields, ok
}

// Names returns the declared channel names in sorted order.
func (m OutputTypeMap) Names() []string {
	return slices.Sorted(maps.Keys(m.channels))
}

// Channels returns a copy of the channel declarations.
func (m OutputTypeMap) Channels() map[string][]string {
	out := make(map[string][]string, len(m.channels))
	for channel, fields := range m.channels {
		out[channel] = slices.Clone(fields)
	}
	return out
}
