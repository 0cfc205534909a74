package anthropic

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"chatbridge/internal/provider"
)

// streamingErrorPrefix is prepended by the SDK when it wraps an in-stream
// error event; the remainder of the message is the raw error JSON.
const streamingErrorPrefix = "received error while streaming: "

// normalizeError converts any SDK or transport error into the uniform
// provider taxonomy. The SDK returns different shapes for streaming and
// non-streaming failures, so both paths funnel through the same JSON parse.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr
	}

	// Non-streaming: *anthropic.Error carries the structured body.
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if resp, parseErr := parseErrorJSON(apiErr.RawJSON()); parseErr == nil {
			return fromErrorResponse(apiErr.StatusCode, resp)
		}
		return provider.NewAPIError(apiErr.StatusCode, apiErr.Error())
	}

	// Streaming: the SDK embeds the error JSON in the message string.
	if jsonStr, ok := strings.CutPrefix(err.Error(), streamingErrorPrefix); ok {
		if resp, parseErr := parseErrorJSON(jsonStr); parseErr == nil {
			return fromErrorResponse(0, resp)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return provider.NewConnectionError("failed to reach anthropic api: " + err.Error())
	}

	return provider.NewServerError(err.Error())
}

func parseErrorJSON(jsonStr string) (*anthropic.ErrorResponse, error) {
	var resp anthropic.ErrorResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// fromErrorResponse maps the target's error taxonomy onto the provider's.
// statusCode may be 0 on the streaming path, where no HTTP status exists.
func fromErrorResponse(statusCode int, resp *anthropic.ErrorResponse) *provider.Error {
	msg := resp.Error.Message
	switch resp.Error.Type {
	case "authentication_error", "permission_error":
		return provider.NewAuthenticationError(msg)
	case "rate_limit_error":
		return provider.NewRateLimitError(msg)
	case "invalid_request_error", "not_found_error":
		return provider.NewInvalidRequestError(msg)
	default:
		// overloaded_error, timeout_error, billing_error, api_error and
		// anything the target adds later.
		return provider.NewAPIError(statusCode, msg)
	}
}
