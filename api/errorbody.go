// Package api implements the HTTP handlers for the gateway's four
// inbound endpoints (spec §6: POST /v1/chat/completions, POST
// /v1/messages, POST /v1/responses, GET /v1/models) plus the admin
// surface's auth and error-rendering concerns, generalized from the
// teacher's api/handlers response-envelope pattern to each protocol's
// own native error shape instead of one shared envelope.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/types"
)

// WriteProtocolError renders a *types.Error in the wire shape the
// client's originating protocol expects, so a client never has to
// special-case the gateway's own error envelope versus an upstream
// passthrough error.
func WriteProtocolError(w http.ResponseWriter, protocol llmswitch.Protocol, err *types.Error) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	switch protocol {
	case llmswitch.ProtocolAnthropic:
		json.NewEncoder(w).Encode(anthropicErrorBody{
			Type: "error",
			Error: anthropicErrorDetail{
				Type:    string(err.Code),
				Message: err.Message,
			},
		})
	default:
		json.NewEncoder(w).Encode(openAIErrorBody{
			Error: openAIErrorDetail{
				Message: err.Message,
				Type:    string(err.Code),
				Code:    string(err.Code),
			},
		})
	}
}

type openAIErrorBody struct {
	Error openAIErrorDetail `json:"error"`
}

type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type anthropicErrorBody struct {
	Type  string                `json:"type"`
	Error anthropicErrorDetail `json:"error"`
}

type anthropicErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// asGatewayError converts an arbitrary error into a *types.Error,
// wrapping anything not already typed as an internal error so every
// failure path renders through WriteProtocolError uniformly.
func asGatewayError(err error) *types.Error {
	if e, ok := err.(*types.Error); ok {
		return e
	}
	return types.NewError(types.ErrInternalError, err.Error()).WithHTTPStatus(http.StatusInternalServerError)
}
