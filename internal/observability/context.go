package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	searchIDKey  contextKey = "search_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithSearchID adds a search ID to the context.
func WithSearchID(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, searchIDKey, searchID)
}

// SearchIDFromContext retrieves the search ID from context.
// Returns empty string if not present.
func SearchIDFromContext(ctx context.Context) string {
	if v := ctx.Value(searchIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// RequestContext contains the identifiers carried through one search request.
type RequestContext struct {
	RequestID string
	SearchID  string
}

// RequestContextFromContext extracts all request identifiers from the context.
func RequestContextFromContext(ctx context.Context) RequestContext {
	return RequestContext{
		RequestID: RequestIDFromContext(ctx),
		SearchID:  SearchIDFromContext(ctx),
	}
}
