package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/internal/service"
)

func EvaluateDocs() huma.Operation {
	return huma.Operation{
		OperationID: "evaluate-adapter",
		Method:      http.MethodPost,
		Summary:     "Evaluate an adapter definition",
		Description: "Starts the adapter definition on an in-memory host, submits the sample records in order and returns the emitted results",
	}
}

type EvaluateInput struct {
	Body struct {
		Adapter models.AdapterConfig   `json:"adapter" doc:"Adapter definition"`
		Records []service.SampleRecord `json:"records" doc:"Sample records submitted in order"`
	}
}

type EvaluateResponse struct {
	Body service.EvaluationResult
}

func (h *handler) evaluate(ctx context.Context, input *EvaluateInput) (*EvaluateResponse, error) {
	result, err := h.cep.Evaluate(ctx, input.Body.Adapter, input.Body.Records)
	if err != nil {
		code := "evaluation_error"
		switch {
		case models.IsConfigurationErr(err):
			code = "invalid_configuration"
		case models.IsCompilationErr(err):
			code = "compilation_error"
		}

		return nil, &ErrorDetail{
			Status:  http.StatusUnprocessableEntity,
			Code:    code,
			Message: "Failed to evaluate adapter definition",
			Details: map[string]any{
				"error": err.Error(),
			},
		}
	}

	return &EvaluateResponse{Body: result}, nil
}
