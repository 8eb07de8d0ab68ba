// Package adapter connects upstream records to a continuous query engine and
// routes the engine results onto output channels.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/models"
)

type State int32

const (
	StateUnconfigured State = iota
	StateConfigured
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Adapter struct {
	factory engine.Factory
	log     *slog.Logger

	// mu serializes configuration and lifecycle transitions.
	mu    sync.Mutex
	state atomic.Int32

	schema          models.EventSchema
	outputs         models.OutputTypeMap
	statements      []string
	statementModels []models.StatementModel
	statementsSet   bool
	modelsSet       bool

	provider   engine.Provider
	ingress    *IngressRouter
	eventTypes []string
}

func New(factory engine.Factory, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		factory: factory,
		log:     log,
	}
}

func (a *Adapter) State() State {
	return State(a.state.Load())
}

func (a *Adapter) WithEventSchema(schema models.EventSchema) error {
	if schema.IsZero() {
		return models.ConfigurationError{Msg: "event schema cannot be empty"}
	}

	return a.configure(func() {
		a.schema = schema
	})
}

// WithEventSchemaFrom derives the event schema from v with extract.
func (a *Adapter) WithEventSchemaFrom(extract models.SchemaExtractor, v any) error {
	if extract == nil {
		return models.ConfigurationError{Msg: "schema extractor cannot be nil"}
	}

	schema, err := extract(v)
	if err != nil {
		return err
	}

	return a.WithEventSchema(schema)
}

func (a *Adapter) WithOutputTypes(types map[string][]string) error {
	outputs, err := models.NewOutputTypeMap(types)
	if err != nil {
		return err
	}

	return a.configure(func() {
		a.outputs = outputs
	})
}

// WithStatements sets the raw statement texts. An empty list is accepted as
// long as structured statements are provided before start.
func (a *Adapter) WithStatements(statements []string) error {
	if statements == nil {
		return models.ConfigurationError{Msg: "statements cannot be null"}
	}
	for i, s := range statements {
		if strings.TrimSpace(s) == "" {
			return models.ConfigurationError{Msg: fmt.Sprintf("statement %d cannot be empty", i)}
		}
	}

	statements = slices.Clone(statements)
	return a.configure(func() {
		a.statements = statements
		a.statementsSet = true
	})
}

func (a *Adapter) WithStatementModels(statementModels []models.StatementModel) error {
	if statementModels == nil {
		return models.ConfigurationError{Msg: "statement models cannot be null"}
	}
	for i, m := range statementModels {
		if err := m.Validate(); err != nil {
			return models.ConfigurationError{Msg: fmt.Sprintf("statement model %d", i), Err: err}
		}
	}

	statementModels = slices.Clone(statementModels)
	return a.configure(func() {
		a.statementModels = statementModels
		a.modelsSet = true
	})
}

func (a *Adapter) configure(apply func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.State() {
	case StateActive:
		return models.ConfigurationError{Msg: "adapter cannot be configured after start"}
	case StateStopped:
		return models.ConfigurationError{Msg: "adapter cannot be configured", Err: models.ErrAdapterStopped}
	}

	apply()
	a.state.Store(int32(StateConfigured))

	return nil
}

// OutputChannels returns the declared output channels with their fields.
func (a *Adapter) OutputChannels() map[string][]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.outputs.Channels()
}

// EventTypes returns the event types registered at start.
func (a *Adapter) EventTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.eventTypes)
}

// Start registers the task sources, creates the engine provider and activates
// every statement. Any failure destroys the provider and leaves the adapter
// configured.
func (a *Adapter) Start(ctx context.Context, task host.TaskContext, collector host.Collector) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.State() {
	case StateActive:
		return models.ConfigurationError{Msg: "adapter is already started"}
	case StateStopped:
		return models.ConfigurationError{Msg: "adapter cannot be started", Err: models.ErrAdapterStopped}
	}

	if a.schema.IsZero() {
		return models.ConfigurationError{Msg: "event schema must be set before start"}
	}
	if a.outputs.IsZero() {
		return models.ConfigurationError{Msg: "output types must be set before start"}
	}
	if len(a.statements) == 0 && len(a.statementModels) == 0 {
		return models.ConfigurationError{Msg: "no statements configured", Err: models.ErrNoStatements}
	}
	if task == nil || collector == nil {
		return models.ConfigurationError{Msg: "task context and collector are required"}
	}

	cfg := a.factory.NewConfiguration()
	registry := NewRegistry(a.schema, cfg)
	for _, src := range task.Sources() {
		name, err := registry.RegisterSource(src.ComponentID, src.StreamID, src.Fields)
		if err != nil {
			return err
		}
		a.log.Debug("registered source", slog.String("event_type", name))
	}

	provider, err := a.factory.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("create engine provider: %w", err)
	}

	if err := a.activate(ctx, provider, collector); err != nil {
		if destroyErr := provider.Destroy(); destroyErr != nil {
			a.log.Error("failed to destroy engine provider", slog.Any("error", destroyErr))
		}
		return err
	}

	a.provider = provider
	a.ingress = NewIngressRouter(provider, collector)
	a.eventTypes = registry.EventTypes()
	a.state.Store(int32(StateActive))

	a.log.Info("adapter started",
		slog.Any("event_types", a.eventTypes),
		slog.Any("channels", a.outputs.Names()),
	)

	return nil
}

func (a *Adapter) activate(ctx context.Context, provider engine.Provider, collector host.Collector) error {
	if err := provider.Initialize(); err != nil {
		return fmt.Errorf("initialize engine provider: %w", err)
	}

	egress := NewEgressRouter(ctx, a.outputs, collector)
	active, err := NewActivator(provider, egress, a.log).Activate(a.statements, a.statementModels)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return models.ConfigurationError{Msg: "no statements activated", Err: models.ErrNoStatements}
	}

	return nil
}

// Process submits a single record. Records must be delivered serially.
func (a *Adapter) Process(ctx context.Context, rec models.Record) error {
	if a.State() != StateActive {
		return models.ErrAdapterNotActive
	}
	return a.ingress.OnRecord(ctx, rec)
}

// Stop destroys the engine provider if one was created. Stop is idempotent and
// the adapter cannot be started again.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.State() == StateStopped {
		return nil
	}
	a.state.Store(int32(StateStopped))

	if a.provider == nil {
		return nil
	}

	provider := a.provider
	a.provider = nil
	if err := provider.Destroy(); err != nil {
		return fmt.Errorf("destroy engine provider: %w", err)
	}

	a.log.Info("adapter stopped")

	return nil
}
