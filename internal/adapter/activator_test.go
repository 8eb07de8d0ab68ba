package adapter

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/glassflow-cep/internal/cep"
	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

func TestCheckSyntax(t *testing.T) {
	factory := cep.NewEngine()
	baseline := factory.LiveProviders()

	err := CheckSyntax(factory, "select foo from bar((")
	require.Error(t, err)
	assert.True(t, models.IsQuerySyntaxErr(err))
	assert.Equal(t, baseline, factory.LiveProviders())

	err = CheckSyntax(factory, "select foo from bar(baz = 1).win:length(3)")
	require.NoError(t, err)
	assert.Equal(t, baseline, factory.LiveProviders())
}

func TestCheckSyntax_DestroysProviderOnPrepareFailure(t *testing.T) {
	provider := &MockProvider{}
	provider.On("Initialize").Return(nil)
	provider.On("Prepare", "select").Return(errors.New("bad statement"))
	provider.On("Destroy").Return(nil).Once()

	cfg := &MockConfiguration{}
	factory := &MockFactory{}
	factory.On("NewConfiguration").Return(cfg)
	factory.On("NewProvider", cfg).Return(provider, nil)

	err := CheckSyntax(factory, "select")
	require.Error(t, err)
	assert.True(t, models.IsQuerySyntaxErr(err))
	provider.AssertExpectations(t)
}

func TestActivator_Activate(t *testing.T) {
	e := cep.NewEngine()
	cfg := e.NewConfiguration()
	require.NoError(t, cfg.AddEventType("quotes_default", quotesSchema(t)))
	provider, err := e.NewProvider(cfg)
	require.NoError(t, err)
	require.NoError(t, provider.Initialize())
	defer provider.Destroy()

	listener := engine.UpdateListenerFunc(func(_, _ []engine.EventBean) error { return nil })
	a := NewActivator(provider, listener, slog.Default())

	active, err := a.Activate(
		[]string{"select symbol from quotes_default"},
		[]models.StatementModel{{Wildcard: true, From: "quotes_default"}},
	)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "select symbol from quotes_default", active[0].Text())
	assert.Equal(t, "select * from quotes_default", active[1].Text())

	active, err = a.Activate(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestActivator_CompilationError(t *testing.T) {
	provider := &MockProvider{}
	provider.On("CompileAndActivate", mock.Anything).Return(nil, errors.New("unknown event type"))

	a := NewActivator(provider, nil, slog.Default())

	_, err := a.Activate([]string{"select * from trades_default"}, nil)
	require.Error(t, err)

	var compileErr models.CompilationError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "select * from trades_default", compileErr.Statement)
}
