// Package provider holds what every LLM backend shares: the upstream error
// shape the relays propagate to callers.
package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError is a failure reported by the LLM provider itself.
type UpstreamError struct {
	Status  int
	Type    string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s (%d): %s", e.Type, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError builds an UpstreamError, naming it after its status.
func NewUpstreamError(status int, message string, cause error) *UpstreamError {
	return &UpstreamError{
		Status:  status,
		Type:    ErrorName(status),
		Message: message,
		Err:     cause,
	}
}

// AsUpstream extracts an UpstreamError from err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.Status > 0 {
		return upstream, true
	}
	return nil, false
}

// ErrorName maps an HTTP status onto the provider SDK's error class names.
func ErrorName(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "BadRequestError"
	case status == http.StatusUnauthorized:
		return "AuthenticationError"
	case status == http.StatusForbidden:
		return "PermissionDeniedError"
	case status == http.StatusNotFound:
		return "NotFoundError"
	case status == http.StatusConflict:
		return "ConflictError"
	case status == http.StatusUnprocessableEntity:
		return "UnprocessableEntityError"
	case status == http.StatusTooManyRequests:
		return "RateLimitError"
	case status >= http.StatusInternalServerError:
		return "InternalServerError"
	default:
		return "APIError"
	}
}
