package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInputStream         = "gf-cep-input"
	DefaultOutputStream        = "gf-cep-output"
	DefaultOutputSubjectPrefix = "cep.out"
	DefaultConsumerName        = "gf-cep-adapter"
	DefaultAckWait             = 30 * time.Second
	DefaultKafkaConsumerGroup  = "glassflow-cep"
)

// AdapterConfig is the file representation of an adapter definition.
type AdapterConfig struct {
	Name            string              `json:"name,omitempty" yaml:"name,omitempty"`
	EventSchema     []Field             `json:"event_schema" yaml:"event_schema"`
	OutputTypes     map[string][]string `json:"output_types" yaml:"output_types"`
	Statements      []string            `json:"statements,omitempty" yaml:"statements,omitempty"`
	StatementModels []StatementModel    `json:"statement_models,omitempty" yaml:"statement_models,omitempty"`
	Sources         []SourceConfig      `json:"sources" yaml:"sources"`

	NATS  NATSHostConfig    `json:"nats,omitempty" yaml:"nats,omitempty"`
	Kafka KafkaSourceConfig `json:"kafka,omitempty" yaml:"kafka,omitempty"`
}

type SourceConfig struct {
	ComponentID string   `json:"component_id" yaml:"component_id"`
	StreamID    string   `json:"stream_id,omitempty" yaml:"stream_id,omitempty"`
	Fields      []string `json:"fields" yaml:"fields"`
	Subject     string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Topic       string   `json:"topic,omitempty" yaml:"topic,omitempty"`
}

type NATSHostConfig struct {
	InputStream         string       `json:"input_stream,omitempty" yaml:"input_stream,omitempty"`
	OutputStream        string       `json:"output_stream,omitempty" yaml:"output_stream,omitempty"`
	OutputSubjectPrefix string       `json:"output_subject_prefix,omitempty" yaml:"output_subject_prefix,omitempty"`
	ConsumerName        string       `json:"consumer_name,omitempty" yaml:"consumer_name,omitempty"`
	AckWait             JSONDuration `json:"ack_wait,omitempty" yaml:"ack_wait,omitempty"`
}

type ConsumerGroupOffset string

const (
	InitialOffsetEarliest ConsumerGroupOffset = "earliest"
	InitialOffsetLatest   ConsumerGroupOffset = "latest"
)

func (o ConsumerGroupOffset) String() string {
	return string(o)
}

type KafkaSourceConfig struct {
	Brokers       []string            `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	ConsumerGroup string              `json:"consumer_group,omitempty" yaml:"consumer_group,omitempty"`
	InitialOffset ConsumerGroupOffset `json:"initial_offset,omitempty" yaml:"initial_offset,omitempty"`
}

// WithDefaults fills optional transport settings.
func (c AdapterConfig) WithDefaults() AdapterConfig {
	if c.NATS.InputStream == "" {
		c.NATS.InputStream = DefaultInputStream
	}
	if c.NATS.OutputStream == "" {
		c.NATS.OutputStream = DefaultOutputStream
	}
	if c.NATS.OutputSubjectPrefix == "" {
		c.NATS.OutputSubjectPrefix = DefaultOutputSubjectPrefix
	}
	if c.NATS.ConsumerName == "" {
		c.NATS.ConsumerName = DefaultConsumerName
	}
	if c.NATS.AckWait.Duration() == 0 {
		c.NATS.AckWait = NewJSONDuration(DefaultAckWait)
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = DefaultKafkaConsumerGroup
	}
	if c.Kafka.InitialOffset == "" {
		c.Kafka.InitialOffset = InitialOffsetEarliest
	}

	sources := make([]SourceConfig, len(c.Sources))
	for i, s := range c.Sources {
		if s.StreamID == "" {
			s.StreamID = DefaultStreamID
		}
		if s.Subject == "" {
			s.Subject = s.ComponentID + "." + s.StreamID
		}
		if s.Topic == "" {
			s.Topic = s.ComponentID
		}
		sources[i] = s
	}
	c.Sources = sources

	return c
}

// Bindings validates the declared sources and returns them as source bindings.
func (c AdapterConfig) Bindings() ([]SourceBinding, error) {
	if len(c.Sources) == 0 {
		return nil, ConfigurationError{Msg: "at least one source must be declared"}
	}

	seen := make(map[string]struct{}, len(c.Sources))
	bindings := make([]SourceBinding, 0, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.ComponentID) == "" {
			return nil, ConfigurationError{Msg: fmt.Sprintf("source %d: component_id cannot be empty", i)}
		}
		streamID := s.StreamID
		if streamID == "" {
			streamID = DefaultStreamID
		}
		if len(s.Fields) == 0 {
			return nil, ConfigurationError{Msg: fmt.Sprintf("source %s: fields cannot be empty", s.ComponentID)}
		}

		b := SourceBinding{ComponentID: s.ComponentID, StreamID: streamID, Fields: s.Fields}
		if _, ok := seen[b.EventTypeName()]; ok {
			return nil, ConfigurationError{Msg: fmt.Sprintf("source %s declared twice", b.EventTypeName())}
		}
		seen[b.EventTypeName()] = struct{}{}

		bindings = append(bindings, b)
	}

	return bindings, nil
}

func (c KafkaSourceConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ConfigurationError{Msg: "must have at least one kafka server"}
	}
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			return ConfigurationError{Msg: "kafka server cannot be empty"}
		}
	}

	switch c.InitialOffset {
	case InitialOffsetEarliest, InitialOffsetLatest, "":
	default:
		return ConfigurationError{Msg: "invalid initial_offset; allowed values: `earliest` or `latest`"}
	}

	return nil
}

type JSONDuration struct {
	t time.Duration
}

func NewJSONDuration(d time.Duration) JSONDuration {
	return JSONDuration{t: d}
}

func (d *JSONDuration) UnmarshalJSON(b []byte) error {
	var rawValue any

	err := json.Unmarshal(b, &rawValue)
	if err != nil {
		return fmt.Errorf("unable to unmarshal duration: %w", err)
	}

	return d.set(rawValue)
}

func (d *JSONDuration) UnmarshalYAML(node *yaml.Node) error {
	var rawValue any

	err := node.Decode(&rawValue)
	if err != nil {
		return fmt.Errorf("unable to unmarshal duration: %w", err)
	}

	return d.set(rawValue)
}

func (d *JSONDuration) set(rawValue any) error {
	switch val := rawValue.(type) {
	case string:
		var err error
		d.t, err = time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("unable to parse as duration: %w", err)
		}
	default:
		return fmt.Errorf("invalid duration: %#v", rawValue)
	}

	return nil
}

// UnmarshalText lets the duration be read from plain strings, such as
// environment values and API documents.
func (d *JSONDuration) UnmarshalText(b []byte) error {
	return d.set(string(b))
}

func (d JSONDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.t.String())
}

func (d JSONDuration) String() string {
	return d.t.String()
}

func (d JSONDuration) Duration() time.Duration {
	return d.t
}
