package client

import (
	"fmt"
)

// maxErrorBody bounds how much of a response body is quoted in error strings.
// The full body stays available on the error value.
const maxErrorBody = 512

// TransportError is a failure to complete the HTTP exchange: connection,
// TLS, context cancellation or reading the response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestFailure is a completed exchange that returned a non-2xx status
type RequestFailure struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("%s %s: request failed with status %d: %s", e.Method, e.Path, e.StatusCode, truncate(e.Body))
}

// DecodeError is a successful response whose body does not match the
// expected shape.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v: %s", e.Err, truncate(e.Body))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
