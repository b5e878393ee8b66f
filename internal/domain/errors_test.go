package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidQueryError(t *testing.T) {
	err := NewInvalidQueryError("  ", "query is empty")
	assert.EqualError(t, err, "invalid query: query is empty")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestAnalysisError(t *testing.T) {
	t.Run("wraps sentinel and cause", func(t *testing.T) {
		cause := errors.New("openai: request failed")
		err := NewAnalysisError("transformers", cause)

		assert.True(t, errors.Is(err, ErrAnalysisFailed))
		assert.True(t, errors.Is(err, cause))
		assert.Contains(t, err.Error(), "openai: request failed")
		assert.False(t, err.Rejected)
	})

	t.Run("rejection carries the model message", func(t *testing.T) {
		err := NewRejectedQueryError("hello", "not a paper search")

		assert.True(t, errors.Is(err, ErrAnalysisFailed))
		assert.True(t, err.Rejected)
		assert.Equal(t, "query analysis rejected query: not a paper search", err.Error())
	})

	t.Run("errors.As finds it through wrapping", func(t *testing.T) {
		wrapped := errors.Join(errors.New("outer"), NewAnalysisError("q", nil))
		var target *AnalysisError
		assert.True(t, errors.As(wrapped, &target))
	})
}

func TestSourcePartialFailure(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		err := &SourcePartialFailure{Source: SourceTypeArXiv, Err: context.DeadlineExceeded, TimedOut: true}
		assert.Equal(t, "source arxiv timed out", err.Error())
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.True(t, errors.Is(err, ErrSourceFailed))
	})

	t.Run("api error", func(t *testing.T) {
		apiErr := NewExternalAPIError("Semantic Scholar", 503, "unavailable", nil)
		err := &SourcePartialFailure{Source: SourceTypeSemanticScholar, Err: apiErr}

		var target *ExternalAPIError
		assert.True(t, errors.As(err, &target))
		assert.Equal(t, 503, target.StatusCode)
	})
}
