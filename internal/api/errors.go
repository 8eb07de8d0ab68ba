package api

type ErrorDetail struct {
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ErrorDetail) Error() string {
	return e.Message
}

func (e *ErrorDetail) GetStatus() int {
	return e.Status
}
