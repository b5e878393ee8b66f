package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAnalysisFailed indicates that query analysis failed and no fallback was permitted.
	ErrAnalysisFailed = errors.New("query analysis failed")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrSourceFailed indicates that a single paper source failed during retrieval.
	ErrSourceFailed = errors.New("source failed")
)

// User-facing messages for the two non-transport outcomes of a search.
const (
	MessageUnclearQuery = "Your query seems unclear or incomplete. Please provide more specific details about the academic papers you're looking for."
	MessageNoPapers     = "No papers found matching your query. Please try a different search term."
)

// InvalidQueryError is returned for empty or malformed queries before any
// external call is made.
type InvalidQueryError struct {
	Query  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InvalidQueryError) Unwrap() error {
	return ErrInvalidInput
}

// AnalysisError is returned when the language-understanding step fails and
// fallback is disabled, or when the model rejects the query outright.
type AnalysisError struct {
	Query string

	// Rejected is true when the model judged the query invalid.
	Rejected bool

	// Message is the model's explanation for a rejection.
	Message string

	Cause error
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	switch {
	case e.Rejected && e.Message != "":
		return fmt.Sprintf("query analysis rejected query: %s", e.Message)
	case e.Rejected:
		return "query analysis rejected query"
	case e.Cause != nil:
		return fmt.Sprintf("query analysis failed: %v", e.Cause)
	default:
		return "query analysis failed"
	}
}

// Unwrap exposes both the sentinel and the cause.
func (e *AnalysisError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAnalysisFailed}
	}
	return []error{ErrAnalysisFailed, e.Cause}
}

// SourcePartialFailure records that one source failed or timed out during a
// retrieval. It is never fatal to the pipeline.
type SourcePartialFailure struct {
	Source   SourceType
	Err      error
	TimedOut bool
}

// Error implements the error interface.
func (e *SourcePartialFailure) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("source %s timed out", e.Source)
	}
	return fmt.Sprintf("source %s failed: %v", e.Source, e.Err)
}

// Unwrap exposes both the sentinel and the underlying error.
func (e *SourcePartialFailure) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSourceFailed}
	}
	return []error{ErrSourceFailed, e.Err}
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewInvalidQueryError creates a new InvalidQueryError.
func NewInvalidQueryError(query, reason string) *InvalidQueryError {
	return &InvalidQueryError{
		Query:  query,
		Reason: reason,
	}
}

// NewAnalysisError creates an AnalysisError wrapping a capability or parse failure.
func NewAnalysisError(query string, cause error) *AnalysisError {
	return &AnalysisError{
		Query: query,
		Cause: cause,
	}
}

// NewRejectedQueryError creates an AnalysisError for a query the model judged invalid.
func NewRejectedQueryError(query, message string) *AnalysisError {
	return &AnalysisError{
		Query:    query,
		Rejected: true,
		Message:  message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
