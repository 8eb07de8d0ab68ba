package adapter

import (
	"github.com/stretchr/testify/mock"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// MockFactory hands out the configured provider.
type MockFactory struct {
	mock.Mock
}

func (m *MockFactory) NewConfiguration() engine.Configuration {
	args := m.Called()
	return args.Get(0).(engine.Configuration)
}

func (m *MockFactory) NewProvider(cfg engine.Configuration) (engine.Provider, error) {
	args := m.Called(cfg)
	p, _ := args.Get(0).(engine.Provider)
	return p, args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Initialize() error {
	return m.Called().Error(0)
}

func (m *MockProvider) Destroy() error {
	return m.Called().Error(0)
}

func (m *MockProvider) IsDestroyed() bool {
	return m.Called().Bool(0)
}

func (m *MockProvider) Prepare(query string) error {
	return m.Called(query).Error(0)
}

func (m *MockProvider) CompileAndActivate(spec models.StatementSpec) (engine.Statement, error) {
	args := m.Called(spec)
	st, _ := args.Get(0).(engine.Statement)
	return st, args.Error(1)
}

func (m *MockProvider) SendEvent(event map[string]any, typeName string) error {
	return m.Called(event, typeName).Error(0)
}

type MockConfiguration struct {
	mock.Mock
}

func (m *MockConfiguration) AddEventType(name string, schema models.EventSchema) error {
	return m.Called(name, schema).Error(0)
}

func (m *MockConfiguration) EventTypes() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

// fakeEvent is a result event with a fixed property order.
type fakeEvent struct {
	typeName   string
	properties []string
	values     map[string]any
}

func (e fakeEvent) EventType() engine.EventType { return e }
func (e fakeEvent) Name() string                { return e.typeName }
func (e fakeEvent) PropertyNames() []string     { return e.properties }
func (e fakeEvent) Get(p string) any            { return e.values[p] }
