package service

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a non-2xx response from the analysis service.
type APIError struct {
	StatusCode int
	Message    string
	Raw        map[string]any
	RequestID  string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.RequestID != "":
		return fmt.Sprintf("service error: status=%d request_id=%s message=%s", e.StatusCode, e.RequestID, e.Message)
	case e.Message != "":
		return fmt.Sprintf("service error: status=%d message=%s", e.StatusCode, e.Message)
	case e.RequestID != "":
		return fmt.Sprintf("service error: status=%d request_id=%s", e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("service error: status=%d", e.StatusCode)
}

// BadRequestError indicates a 4xx the service explained but which carries no analysis outcome.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the service.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("server error: %s", e.APIError.Error()) }

// TransportError is a failure to obtain a usable response: the service was unreachable,
// kept failing after retries, or answered with a body that could not be decoded. It is
// transient; the caller may retry the same request.
type TransportError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport failure"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s failed (request_id=%s): %v", e.Op, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
