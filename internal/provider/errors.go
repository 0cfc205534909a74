package provider

import "net/http"

// Kind classifies a provider failure using the wire-level error taxonomy.
// Adapter implementations catch their SDK-specific errors at the boundary and
// re-raise one of these; nothing target-specific leaks past an adapter.
type Kind string

const (
	KindAuthentication Kind = "authentication_error"
	KindRateLimit      Kind = "rate_limit_error"
	KindInvalidRequest Kind = "invalid_request_error"
	KindConnection     Kind = "connection_error"
	KindAPI            Kind = "api_error"
	KindServer         Kind = "server_error"
)

// Error is the uniform provider error. StatusCode is the HTTP status the
// gateway should answer with; for KindAPI it carries the target's own status.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewAuthenticationError reports an invalid or unusable credential.
func NewAuthenticationError(message string) *Error {
	return &Error{Kind: KindAuthentication, StatusCode: http.StatusUnauthorized, Message: message}
}

// NewRateLimitError reports an exhausted quota at the target.
func NewRateLimitError(message string) *Error {
	return &Error{Kind: KindRateLimit, StatusCode: http.StatusTooManyRequests, Message: message}
}

// NewInvalidRequestError reports malformed or unmappable input.
func NewInvalidRequestError(message string) *Error {
	return &Error{Kind: KindInvalidRequest, StatusCode: http.StatusBadRequest, Message: message}
}

// NewConnectionError reports a transport failure reaching the target.
func NewConnectionError(message string) *Error {
	return &Error{Kind: KindConnection, StatusCode: http.StatusBadGateway, Message: message}
}

// NewAPIError reports a target-side failure that is neither an auth nor a
// rate-limit condition, preserving the target's status code.
func NewAPIError(statusCode int, message string) *Error {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	return &Error{Kind: KindAPI, StatusCode: statusCode, Message: message}
}

// NewServerError reports an unexpected internal fault.
func NewServerError(message string) *Error {
	return &Error{Kind: KindServer, StatusCode: http.StatusInternalServerError, Message: message}
}
