package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/gorilla/mux"

	"github.com/glassflow/glassflow-cep/internal/adapter"
	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/internal/service"
)

// AdapterInfo exposes the running adapter. It is nil when the process only
// serves the management API.
type AdapterInfo interface {
	State() adapter.State
	OutputChannels() map[string][]string
	EventTypes() []string
}

type CEPService interface {
	CheckSyntax(query string) error
	Evaluate(ctx context.Context, cfg models.AdapterConfig, samples []service.SampleRecord) (service.EvaluationResult, error)
}

type handler struct {
	log *slog.Logger

	adapter AdapterInfo
	cep     CEPService
}

func NewRouter(log *slog.Logger, info AdapterInfo, cep CEPService) http.Handler {
	h := handler{
		log: log,

		adapter: info,
		cep:     cep,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/healthz", h.healthz).Methods("GET")

	config := huma.DefaultConfig("GlassFlow CEP API", "1.0.0")
	config.OpenAPIPath = "/api/v1/openapi"
	config.DocsPath = "/api/v1/docs"
	config.SchemasPath = "/api/v1/schemas"

	api := humamux.New(r, config)

	register(api, "/api/v1/channels", GetChannelsDocs(), h.getChannels)
	register(api, "/api/v1/statements/validate", ValidateStatementDocs(), h.validateStatement)
	register(api, "/api/v1/evaluate", EvaluateDocs(), h.evaluate)

	r.Use(Recovery(log), RequestLogging(log))

	return r
}

func register[I, O any](api huma.API, path string, op huma.Operation, fn func(context.Context, *I) (*O, error)) {
	op.Path = path
	huma.Register(api, op, fn)
}
