package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/glassflow/glassflow-cep/internal/adapter"
	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/internal/service"
)

type MockAdapterInfo struct {
	mock.Mock
}

func (m *MockAdapterInfo) State() adapter.State {
	args := m.Called()
	return args.Get(0).(adapter.State)
}

func (m *MockAdapterInfo) OutputChannels() map[string][]string {
	args := m.Called()
	return args.Get(0).(map[string][]string)
}

func (m *MockAdapterInfo) EventTypes() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

type MockCEPService struct {
	mock.Mock
}

func (m *MockCEPService) CheckSyntax(query string) error {
	args := m.Called(query)
	return args.Error(0)
}

func (m *MockCEPService) Evaluate(ctx context.Context, cfg models.AdapterConfig, samples []service.SampleRecord) (service.EvaluationResult, error) {
	args := m.Called(ctx, cfg, samples)
	return args.Get(0).(service.EvaluationResult), args.Error(1)
}
