package openaiwire

// Error is an OpenAI-formatted error detail. This is the structure OpenAI
// clients expect under the "error" key.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Error implements the error interface, returning the error message.
func (e *Error) Error() string {
	return e.Message
}

// ErrorResponse wraps Error in the envelope OpenAI clients expect:
// {"error": {...}}. It is used both as an HTTP body and as an in-band SSE
// error frame.
type ErrorResponse struct {
	Err Error `json:"error"`
}

// Error implements the error interface, returning the underlying message.
// This allows ErrorResponse to be used directly in error returns while
// keeping the full wire structure for marshaling.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}
