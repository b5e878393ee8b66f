package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "openai", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API. Zero means no response was received.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error is a transient error that may succeed
// on retry. This includes rate limiting (429), server errors (5xx), and network
// errors (StatusCode 0 indicates no HTTP response was received).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// isTransientError reports whether err is an APIError worth retrying.
// Context errors are never transient.
func isTransientError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsTransient()
}

// ErrorType classifies err for metrics labels.
func ErrorType(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == 0:
			return "network"
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case apiErr.StatusCode >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	default:
		return "unknown"
	}
}

// networkError wraps a transport failure so that it is retried.
func networkError(provider string, err error) *APIError {
	return &APIError{
		Provider: provider,
		Message:  fmt.Sprintf("request failed: %v", err),
		Type:     "network_error",
	}
}
