package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glassflow/glassflow-cep/internal/adapter"
	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/host/memory"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// BuildAdapter configures an adapter from its file definition. The adapter is
// returned configured, not started.
func BuildAdapter(factory engine.Factory, cfg models.AdapterConfig, log *slog.Logger) (*adapter.Adapter, error) {
	schema, err := models.NewEventSchemaFromFields(cfg.EventSchema)
	if err != nil {
		return nil, err
	}

	a := adapter.New(factory, log)
	if err := a.WithEventSchema(schema); err != nil {
		return nil, err
	}
	if err := a.WithOutputTypes(cfg.OutputTypes); err != nil {
		return nil, err
	}
	if cfg.Statements != nil {
		if err := a.WithStatements(cfg.Statements); err != nil {
			return nil, err
		}
	}
	if cfg.StatementModels != nil {
		if err := a.WithStatementModels(cfg.StatementModels); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// SampleRecord is an upstream record given by name for a dry run.
type SampleRecord struct {
	Component string         `json:"component" minLength:"1" doc:"Upstream component id"`
	Stream    string         `json:"stream,omitempty" doc:"Upstream stream id, default when empty"`
	Values    map[string]any `json:"values" doc:"Field values keyed by field name"`
}

type RecordFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type EvaluationResult struct {
	Emissions []memory.Emission `json:"emissions"`
	Failures  []RecordFailure   `json:"failures,omitempty"`
	Acked     int               `json:"acked"`
}

type CEPService struct {
	factory engine.Factory
	log     *slog.Logger
}

func NewCEPService(factory engine.Factory, log *slog.Logger) *CEPService {
	return &CEPService{
		factory: factory,
		log:     log,
	}
}

func (s *CEPService) CheckSyntax(query string) error {
	return adapter.CheckSyntax(s.factory, query)
}

// Evaluate runs a full adapter definition against sample records on the
// in-memory host and reports what it emitted. Records that fail submission
// are reported and do not stop the run.
func (s *CEPService) Evaluate(ctx context.Context, cfg models.AdapterConfig, samples []SampleRecord) (zero EvaluationResult, _ error) {
	cfg = cfg.WithDefaults()

	bindings, err := cfg.Bindings()
	if err != nil {
		return zero, err
	}

	a, err := BuildAdapter(s.factory, cfg, s.log)
	if err != nil {
		return zero, err
	}

	collector := memory.NewCollector()
	if err := a.Start(ctx, host.StaticTask(bindings), collector); err != nil {
		return zero, err
	}

	byType := make(map[string]models.SourceBinding, len(bindings))
	for _, b := range bindings {
		byType[b.EventTypeName()] = b
	}

	var failures []RecordFailure
	for i, sample := range samples {
		rec, err := sampleRecord(byType, sample)
		if err == nil {
			err = a.Process(ctx, rec)
		}
		if err != nil {
			failures = append(failures, RecordFailure{Index: i, Error: err.Error()})
		}
	}

	// Stopping drains results still queued on an async dispatcher.
	if err := a.Stop(); err != nil {
		s.log.ErrorContext(ctx, "failed to stop evaluation adapter", slog.Any("error", err))
	}

	emissions := collector.Emissions()
	if emissions == nil {
		emissions = []memory.Emission{}
	}

	return EvaluationResult{
		Emissions: emissions,
		Failures:  failures,
		Acked:     len(collector.Acked()),
	}, nil
}

var ErrUnknownSampleSource = errors.New("sample record source is not declared")

func sampleRecord(byType map[string]models.SourceBinding, sample SampleRecord) (zero models.Record, _ error) {
	streamID := sample.Stream
	if streamID == "" {
		streamID = models.DefaultStreamID
	}

	b, ok := byType[models.EventTypeName(sample.Component, streamID)]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownSampleSource, models.EventTypeName(sample.Component, streamID))
	}

	values := make([]any, len(b.Fields))
	for i, f := range b.Fields {
		values[i] = sample.Values[f]
	}

	return models.NewRecord(b.ComponentID, b.StreamID, b.Fields, values)
}
