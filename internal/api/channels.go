package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func GetChannelsDocs() huma.Operation {
	return huma.Operation{
		OperationID: "get-channels",
		Method:      http.MethodGet,
		Summary:     "Get output channels",
		Description: "Returns the declared output channels of the running adapter with their fields, and the event types it registered",
	}
}

type GetChannelsInput struct{}

type GetChannelsResponse struct {
	Body struct {
		State      string              `json:"state" doc:"Adapter lifecycle state"`
		Channels   map[string][]string `json:"channels" doc:"Output channel fields keyed by channel name"`
		EventTypes []string            `json:"event_types" doc:"Event types registered from upstream sources"`
	}
}

func (h *handler) getChannels(_ context.Context, _ *GetChannelsInput) (*GetChannelsResponse, error) {
	if h.adapter == nil {
		return nil, &ErrorDetail{
			Status:  http.StatusNotFound,
			Code:    "adapter_not_running",
			Message: "No adapter is running in this process",
		}
	}

	resp := &GetChannelsResponse{}
	resp.Body.State = h.adapter.State().String()
	resp.Body.Channels = h.adapter.OutputChannels()
	resp.Body.EventTypes = h.adapter.EventTypes()

	return resp, nil
}
