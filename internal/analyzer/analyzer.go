// Package analyzer turns a raw research question into the keyword set used to
// query paper sources. It wraps an injected llm.QueryAnalyzer with a timeout,
// rejection handling and an optional tokenizing fallback.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
)

const (
	// DefaultTimeout bounds a single analysis when none is configured.
	DefaultTimeout = 30 * time.Second

	llmOperation = "analyze_query"
)

var (
	// ErrNoCapability is the analysis failure cause when no language model is configured.
	ErrNoCapability = errors.New("no language model configured")

	// ErrNoKeywords is the analysis failure cause when the model accepted the
	// query but produced no usable keywords.
	ErrNoKeywords = errors.New("language model returned no keywords")
)

// Config controls a single analysis.
type Config struct {
	// Timeout bounds the language model call. Zero means DefaultTimeout.
	Timeout time.Duration

	// FallbackOnError tokenizes the raw query instead of failing when the
	// language model errors or returns unusable output.
	FallbackOnError bool
}

// Analyzer produces domain.AnalyzedQuery values. It holds no per-query state
// and is safe for concurrent use.
type Analyzer struct {
	capability llm.QueryAnalyzer
	cfg        Config
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// Option configures optional Analyzer dependencies.
type Option func(*Analyzer)

// WithMetrics attaches Prometheus metrics. Without it nothing is recorded.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an Analyzer. capability may be nil, in which case every
// analysis fails and FallbackOnError decides the outcome.
func New(capability llm.QueryAnalyzer, cfg Config, logger zerolog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		capability: capability,
		cfg:        cfg,
		logger:     logger.With().Str("component", "analyzer").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the analyzer's default configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze runs AnalyzeWith using the analyzer's own configuration.
func (a *Analyzer) Analyze(ctx context.Context, raw string) (*domain.AnalyzedQuery, error) {
	return a.AnalyzeWith(ctx, raw, a.cfg)
}

// AnalyzeWith analyzes raw with an explicit configuration.
//
// Outcomes:
//   - blank input returns *domain.InvalidQueryError without calling the model;
//   - a model rejection returns *domain.AnalysisError with Rejected set, even
//     when FallbackOnError is true;
//   - a model failure, unparseable output or zero keywords either falls back to
//     tokenizing raw or returns *domain.AnalysisError wrapping the cause.
//
// The model is called at most once.
func (a *Analyzer) AnalyzeWith(ctx context.Context, raw string, cfg Config) (*domain.AnalyzedQuery, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, domain.NewInvalidQueryError(raw, "query is empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result, err := a.callModel(ctx, text, timeout)
	if err == nil && !result.IsValid {
		a.logger.Info().
			Str("message", result.Message).
			Msg("query rejected by language model")
		a.recordOutcome(observability.AnalysisOutcomeRejected, 0)
		return nil, domain.NewRejectedQueryError(raw, result.Message)
	}
	if err == nil && len(result.Keywords) == 0 {
		err = ErrNoKeywords
	}

	if err != nil {
		// A caller that has gone away gets no fallback.
		if ctx.Err() != nil {
			a.recordOutcome(observability.AnalysisOutcomeError, 0)
			return nil, domain.NewAnalysisError(raw, ctx.Err())
		}
		if cfg.FallbackOnError {
			aq := Fallback(text)
			a.logger.Warn().
				Err(err).
				Strs("keywords", aq.Keywords).
				Msg("query analysis failed, using tokenized query")
			a.recordOutcome(observability.AnalysisOutcomeFallback, len(aq.Keywords))
			return aq, nil
		}

		a.logger.Error().Err(err).Msg("query analysis failed")
		a.recordOutcome(observability.AnalysisOutcomeError, 0)
		return nil, domain.NewAnalysisError(raw, err)
	}

	normalized := result.SearchQuery
	if normalized == "" {
		normalized = strings.Join(result.Keywords, " ")
	}

	aq := &domain.AnalyzedQuery{
		Original:        text,
		Keywords:        result.Keywords,
		Language:        result.Language,
		NormalizedQuery: normalized,
		Intent:          result.Intent,
	}

	a.logger.Info().
		Strs("keywords", aq.Keywords).
		Str("language", aq.Language).
		Str("normalized_query", aq.NormalizedQuery).
		Msg("query analyzed")
	a.recordOutcome(observability.AnalysisOutcomeLLM, len(aq.Keywords))

	return aq, nil
}

// callModel performs the single bounded model call and records LLM metrics.
func (a *Analyzer) callModel(ctx context.Context, text string, timeout time.Duration) (*llm.AnalysisResult, error) {
	if a.capability == nil {
		return nil, ErrNoCapability
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := a.capability.AnalyzeQuery(callCtx, text)
	duration := time.Since(start).Seconds()

	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordLLMRequestFailed(llmOperation, a.capability.Model(), llm.ErrorType(err))
		}
		return nil, fmt.Errorf("%s analysis: %w", a.capability.Provider(), err)
	}
	if result == nil {
		return nil, fmt.Errorf("%s analysis: %w", a.capability.Provider(), llm.ErrMalformedResponse)
	}

	if a.metrics != nil {
		a.metrics.RecordLLMRequest(llmOperation, result.Model, duration, result.InputTokens, result.OutputTokens)
	}
	return result, nil
}

func (a *Analyzer) recordOutcome(outcome string, keywordCount int) {
	if a.metrics != nil {
		a.metrics.RecordQueryAnalysis(outcome, keywordCount)
	}
}

// Fallback builds an AnalyzedQuery by tokenizing text on whitespace and
// punctuation. The keyword list is never empty for non-blank text.
func Fallback(text string) *domain.AnalyzedQuery {
	text = strings.TrimSpace(text)
	keywords := domain.TokenizeQuery(text)
	if len(keywords) == 0 && text != "" {
		keywords = []string{text}
	}
	return &domain.AnalyzedQuery{
		Original:        text,
		Keywords:        keywords,
		NormalizedQuery: text,
		Fallback:        true,
	}
}
