package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatbridge/internal/openaiwire"
	"chatbridge/internal/provider"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// errorEnvelope converts any error into the OpenAI error body plus the HTTP
// status to answer with. Provider errors carry both; anything else is masked
// as a generic api_error so internals never leak to clients.
func errorEnvelope(err error) (*openaiwire.ErrorResponse, int) {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return &openaiwire.ErrorResponse{
			Err: openaiwire.Error{
				Message: perr.Message,
				Type:    string(perr.Kind),
			},
		}, perr.StatusCode
	}

	return &openaiwire.ErrorResponse{
		Err: openaiwire.Error{
			Message: http.StatusText(http.StatusInternalServerError),
			Type:    "api_error",
		},
	}, http.StatusInternalServerError
}

// writeJSONError writes err as an OpenAI error response and returns the HTTP
// status that was sent.
func writeJSONError(ctx context.Context, w http.ResponseWriter, err error) int {
	envelope, status := errorEnvelope(err)
	writeJSON(ctx, w, envelope, status)
	return status
}
