package adapter

import (
	"log/slog"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// Activator compiles statements on a provider and attaches the result listener
// to each of them.
type Activator struct {
	provider engine.Provider
	listener engine.UpdateListener
	log      *slog.Logger
}

func NewActivator(provider engine.Provider, listener engine.UpdateListener, log *slog.Logger) *Activator {
	return &Activator{
		provider: provider,
		listener: listener,
		log:      log,
	}
}

// Activate activates the raw statements first, then the structured ones, in
// the given order. The first compilation failure aborts activation.
func (a *Activator) Activate(statements []string, statementModels []models.StatementModel) ([]engine.Statement, error) {
	specs := make([]models.StatementSpec, 0, len(statements)+len(statementModels))
	for _, text := range statements {
		specs = append(specs, models.TextStatement(text))
	}
	for _, m := range statementModels {
		specs = append(specs, models.ModelStatement(m))
	}

	active := make([]engine.Statement, 0, len(specs))
	for _, spec := range specs {
		st, err := a.provider.CompileAndActivate(spec)
		if err != nil {
			return nil, models.CompilationError{Statement: spec.String(), Err: err}
		}
		st.AddListener(a.listener)
		active = append(active, st)

		a.log.Info("statement activated",
			slog.String("statement", st.Name()),
			slog.String("text", st.Text()),
		)
	}

	return active, nil
}

// CheckSyntax validates a single statement on a throwaway provider. The
// provider is destroyed whatever the outcome.
func CheckSyntax(factory engine.Factory, query string) (err error) {
	provider, err := factory.NewProvider(factory.NewConfiguration())
	if err != nil {
		return models.QuerySyntaxError{Query: query, Err: err}
	}
	defer func() {
		if destroyErr := provider.Destroy(); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}()

	if err := provider.Initialize(); err != nil {
		return models.QuerySyntaxError{Query: query, Err: err}
	}

	if err := provider.Prepare(query); err != nil {
		return models.QuerySyntaxError{Query: query, Err: err}
	}

	return nil
}
