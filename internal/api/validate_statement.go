package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func ValidateStatementDocs() huma.Operation {
	return huma.Operation{
		OperationID: "validate-statement",
		Method:      http.MethodPost,
		Summary:     "Validate statement syntax",
		Description: "Checks the syntax of a statement without resolving event types or properties",
	}
}

type ValidateStatementInput struct {
	Body struct {
		Statement string `json:"statement" minLength:"1" doc:"Statement text to validate"`
	}
}

type ValidateStatementResponse struct {
	Body struct{} `json:"-"`
}

func (h *handler) validateStatement(
	_ context.Context,
	input *ValidateStatementInput,
) (*ValidateStatementResponse, error) {
	err := h.cep.CheckSyntax(input.Body.Statement)
	if err != nil {
		return nil, &ErrorDetail{
			Status:  http.StatusBadRequest,
			Code:    "syntax_error",
			Message: "Statement syntax validation failed",
			Details: map[string]any{
				"error": err.Error(),
			},
		}
	}

	return &ValidateStatementResponse{}, nil
}
