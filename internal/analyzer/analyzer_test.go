package analyzer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
)

// stubCapability is a scripted llm.QueryAnalyzer.
type stubCapability struct {
	result *llm.AnalysisResult
	err    error
	delay  time.Duration
	calls  atomic.Int32
	last   string
}

var _ llm.QueryAnalyzer = (*stubCapability)(nil)

func (s *stubCapability) AnalyzeQuery(ctx context.Context, query string) (*llm.AnalysisResult, error) {
	s.calls.Add(1)
	s.last = query
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.result, s.err
}

func (s *stubCapability) Provider() string { return "stub" }
func (s *stubCapability) Model() string    { return "stub-model" }

func newTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
}

func TestAnalyze_Success(t *testing.T) {
	capability := &stubCapability{result: &llm.AnalysisResult{
		IsValid:     true,
		SearchQuery: "generative adversarial networks image synthesis",
		Keywords:    []string{"generative adversarial networks", "image synthesis"},
		Language:    "zh",
		Intent:      "overview",
		Model:       "stub-model",
	}}
	metrics := newTestMetrics(t)
	a := New(capability, Config{}, zerolog.Nop(), WithMetrics(metrics))

	aq, err := a.Analyze(context.Background(), "  生成对抗网络 图像合成 ")

	require.NoError(t, err)
	assert.Equal(t, "生成对抗网络 图像合成", aq.Original)
	assert.Equal(t, []string{"generative adversarial networks", "image synthesis"}, aq.Keywords)
	assert.Equal(t, "zh", aq.Language)
	assert.Equal(t, "generative adversarial networks image synthesis", aq.NormalizedQuery)
	assert.Equal(t, "overview", aq.Intent)
	assert.False(t, aq.Fallback)
	assert.Equal(t, int32(1), capability.calls.Load())
	assert.Equal(t, "生成对抗网络 图像合成", capability.last)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.QueryAnalyses.WithLabelValues(observability.AnalysisOutcomeLLM)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues("analyze_query", "stub-model")))
}

func TestAnalyze_NormalizedQueryDefaultsToKeywords(t *testing.T) {
	capability := &stubCapability{result: &llm.AnalysisResult{IsValid: true, Keywords: []string{"GAN", "survey"}}}
	a := New(capability, Config{}, zerolog.Nop())

	aq, err := a.Analyze(context.Background(), "GAN survey")

	require.NoError(t, err)
	assert.Equal(t, "GAN survey", aq.NormalizedQuery)
}

func TestAnalyze_BlankQuery(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n"} {
		capability := &stubCapability{}
		a := New(capability, Config{FallbackOnError: true}, zerolog.Nop())

		aq, err := a.Analyze(context.Background(), raw)

		assert.Nil(t, aq)
		var invalid *domain.InvalidQueryError
		require.ErrorAs(t, err, &invalid)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Zero(t, capability.calls.Load(), "model must not be called for %q", raw)
	}
}

func TestAnalyze_Rejected(t *testing.T) {
	for _, fallback := range []bool{false, true} {
		capability := &stubCapability{result: &llm.AnalysisResult{IsValid: false, Message: "not a paper search"}}
		metrics := newTestMetrics(t)
		a := New(capability, Config{FallbackOnError: fallback}, zerolog.Nop(), WithMetrics(metrics))

		aq, err := a.Analyze(context.Background(), "what's for dinner")

		assert.Nil(t, aq)
		var analysisErr *domain.AnalysisError
		require.ErrorAs(t, err, &analysisErr)
		assert.True(t, analysisErr.Rejected)
		assert.Equal(t, "not a paper search", analysisErr.Message)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.QueryAnalyses.WithLabelValues(observability.AnalysisOutcomeRejected)))
	}
}

func TestAnalyze_Failure(t *testing.T) {
	upstream := &llm.APIError{Provider: "stub", StatusCode: 503, Message: "unavailable"}

	tests := []struct {
		name       string
		capability llm.QueryAnalyzer
		wantCause  error
	}{
		{"model error", &stubCapability{err: upstream}, upstream},
		{"malformed output", &stubCapability{err: llm.ErrMalformedResponse}, llm.ErrMalformedResponse},
		{"zero keywords", &stubCapability{result: &llm.AnalysisResult{IsValid: true}}, ErrNoKeywords},
		{"nil result", &stubCapability{}, llm.ErrMalformedResponse},
		{"no capability", nil, ErrNoCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name+" without fallback", func(t *testing.T) {
			metrics := newTestMetrics(t)
			a := New(tt.capability, Config{FallbackOnError: false}, zerolog.Nop(), WithMetrics(metrics))

			aq, err := a.Analyze(context.Background(), "deep learning for protein folding")

			assert.Nil(t, aq)
			var analysisErr *domain.AnalysisError
			require.ErrorAs(t, err, &analysisErr)
			assert.False(t, analysisErr.Rejected)
			assert.ErrorIs(t, err, domain.ErrAnalysisFailed)
			assert.ErrorIs(t, err, tt.wantCause)
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.QueryAnalyses.WithLabelValues(observability.AnalysisOutcomeError)))
		})

		t.Run(tt.name+" with fallback", func(t *testing.T) {
			metrics := newTestMetrics(t)
			a := New(tt.capability, Config{FallbackOnError: true}, zerolog.Nop(), WithMetrics(metrics))

			aq, err := a.Analyze(context.Background(), "deep learning, for protein folding!")

			require.NoError(t, err)
			assert.True(t, aq.Fallback)
			assert.Empty(t, aq.Intent)
			assert.Equal(t, []string{"deep", "learning", "for", "protein", "folding"}, aq.Keywords)
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.QueryAnalyses.WithLabelValues(observability.AnalysisOutcomeFallback)))
		})
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	capability := &stubCapability{delay: time.Second}
	a := New(capability, Config{Timeout: 20 * time.Millisecond, FallbackOnError: true}, zerolog.Nop())

	start := time.Now()
	aq, err := a.Analyze(context.Background(), "attention is all you need")

	require.NoError(t, err)
	assert.True(t, aq.Fallback)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAnalyze_TimeoutWithoutFallback(t *testing.T) {
	capability := &stubCapability{delay: time.Second}
	a := New(capability, Config{Timeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := a.Analyze(context.Background(), "attention is all you need")

	assert.ErrorIs(t, err, domain.ErrAnalysisFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyze_CallerCancelledSkipsFallback(t *testing.T) {
	capability := &stubCapability{delay: time.Second}
	a := New(capability, Config{FallbackOnError: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	aq, err := a.Analyze(ctx, "attention is all you need")

	assert.Nil(t, aq)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, domain.ErrAnalysisFailed)
}

func TestAnalyzeWith_OverridesConfig(t *testing.T) {
	a := New(&stubCapability{err: errors.New("boom")}, Config{FallbackOnError: false}, zerolog.Nop())

	aq, err := a.AnalyzeWith(context.Background(), "graph neural networks", Config{FallbackOnError: true})

	require.NoError(t, err)
	assert.True(t, aq.Fallback)
	assert.False(t, a.Config().FallbackOnError)
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"words", "large language models", []string{"large", "language", "models"}},
		{"punctuation", "GANs; diffusion, VAEs", []string{"GANs", "diffusion", "VAEs"}},
		{"duplicates", "neural Neural networks", []string{"neural", "networks"}},
		{"only punctuation", "???", []string{"???"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aq := Fallback(tt.text)

			assert.Equal(t, tt.want, aq.Keywords)
			assert.NotEmpty(t, aq.Keywords)
			assert.True(t, aq.Fallback)
			assert.Empty(t, aq.Intent)
			assert.Equal(t, tt.text, aq.NormalizedQuery)
		})
	}
}
