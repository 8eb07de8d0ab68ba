package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/glassflow/glassflow-cep/internal/adapter"
)

type healthStatus struct {
	Status  string `json:"status"`
	Adapter string `json:"adapter,omitempty"`
}

// healthz reports ready while the adapter accepts records. A process serving
// only the management API is always ready.
func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	status := healthStatus{Status: "ok"}
	code := http.StatusOK

	if h.adapter != nil {
		state := h.adapter.State()
		status.Adapter = state.String()
		if state != adapter.StateActive {
			status.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.log.Error("failed to write health status", "error", err)
	}
}
