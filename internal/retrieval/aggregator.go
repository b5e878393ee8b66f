// Package retrieval is the entry point of the paper search pipeline. An
// Aggregator analyzes the query, fans out to every enabled source under one
// shared deadline, resolves PDF links, then merges, deduplicates and
// truncates the records into a domain.SearchResult.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/analyzer"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
	"github.com/helixir/paper-search-service/internal/pdfresolve"
)

// State is a stage of a single Retrieve call.
type State string

const (
	StateAnalyzing State = "analyzing"
	StateFetching  State = "fetching"
	StateEnhancing State = "enhancing"
	StateMerging   State = "merging"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Failure reasons recorded in the searches_failed metric.
const (
	failureInvalidQuery   = "invalid_query"
	failureRejected       = "rejected"
	failureAnalysisFailed = "analysis_failed"
)

// QueryAnalyzer produces the keyword set for a raw query.
type QueryAnalyzer interface {
	AnalyzeWith(ctx context.Context, raw string, cfg analyzer.Config) (*domain.AnalyzedQuery, error)
}

// SourceSearcher fans a search out to the selected sources.
type SourceSearcher interface {
	SearchSources(ctx context.Context, params papersources.SearchParams, sourceTypes []domain.SourceType) []papersources.SourceResult
}

// Aggregator runs retrievals. It keeps no per-call state, so concurrent
// Retrieve calls share nothing but the injected dependencies.
type Aggregator struct {
	analyzer QueryAnalyzer
	sources  SourceSearcher
	logger   zerolog.Logger
	metrics  *observability.Metrics
	observe  func(searchID string, state State)
}

// Option configures optional Aggregator dependencies.
type Option func(*Aggregator)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithStateObserver registers a callback invoked on every state transition.
// The callback must be safe for concurrent use.
func WithStateObserver(fn func(searchID string, state State)) Option {
	return func(a *Aggregator) { a.observe = fn }
}

// New creates an Aggregator.
func New(qa QueryAnalyzer, sources SourceSearcher, logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		analyzer: qa,
		sources:  sources,
		logger:   logger.With().Str("component", "retrieval").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// run holds the state of one Retrieve call.
type run struct {
	searchID   string
	cfg        Config
	maxResults int
	logger     zerolog.Logger
	resolver   *pdfresolve.Resolver
	trust      *pdfresolve.TrustPolicy
}

// Retrieve answers query.
//
// Only analysis can fail the call: *domain.InvalidQueryError and
// *domain.AnalysisError are returned unmodified. Source failures and
// timeouts are reported in SearchResult.SourceFailures, and a search that
// finds nothing returns an empty result with a nil error.
func (a *Aggregator) Retrieve(ctx context.Context, query domain.Query, cfg Config) (*domain.SearchResult, error) {
	start := time.Now()

	searchID := observability.SearchIDFromContext(ctx)
	if searchID == "" {
		searchID = uuid.NewString()
	}

	r := &run{
		searchID:   searchID,
		cfg:        cfg,
		maxResults: cfg.effectiveMaxResults(query),
		logger: observability.WithRequestContext(
			observability.WithSearchContext(a.logger, searchID, query.Text),
			observability.RequestContext{RequestID: observability.RequestIDFromContext(ctx)},
		),
	}
	if cfg.RequireTrustedPDF {
		r.trust = pdfresolve.NewTrustPolicy(cfg.TrustedPDFSources)
		r.resolver = pdfresolve.New(cfg.EnablePDFEnhancement, pdfresolve.WithTrust(r.trust))
	} else {
		r.resolver = pdfresolve.New(cfg.EnablePDFEnhancement)
	}

	if a.metrics != nil {
		a.metrics.RecordSearchStarted()
	}

	a.transition(r, StateAnalyzing)
	aq, err := a.analyzer.AnalyzeWith(ctx, query.Text, analyzer.Config{
		Timeout:         cfg.AnalyzerTimeout,
		FallbackOnError: cfg.AnalyzerFallbackOnError,
	})
	if err != nil {
		a.transition(r, StateFailed)
		reason := failureReason(err)
		r.logger.Warn().Err(err).Str("reason", reason).Msg("search failed during analysis")
		if a.metrics != nil {
			a.metrics.RecordSearchFailed(reason, time.Since(start).Seconds())
		}
		return nil, err
	}

	papers, failures := a.fetchAndMerge(ctx, r, aq.Keywords)

	if len(papers) == 0 && cfg.RetryWithOriginalQuery && shouldRetryWithOriginal(aq) {
		retryKeywords := analyzer.Fallback(aq.Original).Keywords
		r.logger.Info().
			Strs("keywords", retryKeywords).
			Msg("no papers for analyzed query, retrying with original query")
		papers, failures = a.fetchAndMerge(ctx, r, retryKeywords)
	}

	a.transition(r, StateDone)

	result := &domain.SearchResult{
		Papers:         papers,
		Query:          *aq,
		SourceFailures: failures,
	}

	duration := time.Since(start)
	r.logger.Info().
		Int("papers", len(papers)).
		Int("source_failures", len(failures)).
		Dur("duration", duration).
		Msg("search completed")
	if a.metrics != nil {
		a.metrics.RecordSearchCompleted(len(papers), duration.Seconds())
	}

	return result, nil
}

// fetchAndMerge runs the Fetching, Enhancing and Merging states once.
func (a *Aggregator) fetchAndMerge(ctx context.Context, r *run, keywords []string) ([]domain.PaperRecord, []domain.SourcePartialFailure) {
	a.transition(r, StateFetching)
	groups, failures := a.fetch(ctx, r, keywords)

	a.transition(r, StateEnhancing)
	for i := range groups {
		groups[i] = a.enhance(r, groups[i])
	}

	a.transition(r, StateMerging)
	papers, duplicates := Merge(groups, r.maxResults)
	if duplicates > 0 {
		r.logger.Debug().Int("duplicates", duplicates).Msg("dropped duplicate titles")
		if a.metrics != nil {
			a.metrics.RecordPaperDuplicates(duplicates)
		}
	}
	return papers, failures
}

// fetch queries all selected sources under one deadline and returns the
// successful record lists in source priority order.
func (a *Aggregator) fetch(ctx context.Context, r *run, keywords []string) ([][]domain.PaperRecord, []domain.SourcePartialFailure) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.fetchTimeout())
	defer cancel()

	params := papersources.SearchParams{
		Keywords:   keywords,
		Limit:      r.maxResults,
		Categories: r.cfg.ArxivCategories,
	}

	results := a.sources.SearchSources(fetchCtx, params, r.cfg.EnabledSources)

	groups := make([][]domain.PaperRecord, 0, len(results))
	var failures []domain.SourcePartialFailure

	for _, res := range results {
		logger := observability.WithSourceContext(r.logger, string(res.Source))

		if failure := res.Failure(); failure != nil {
			status := observability.SourceStatusFailed
			if failure.TimedOut {
				status = observability.SourceStatusTimeout
			}
			logger.Warn().
				Err(failure.Err).
				Bool("timed_out", failure.TimedOut).
				Dur("duration", res.Duration).
				Msg("source search failed")
			if a.metrics != nil {
				a.metrics.RecordSourceSearch(string(res.Source), status, 0, res.Duration.Seconds())
			}
			failures = append(failures, *failure)
			continue
		}

		logger.Debug().
			Int("papers", len(res.Papers)).
			Dur("duration", res.Duration).
			Msg("source search completed")
		if a.metrics != nil {
			a.metrics.RecordSourceSearch(string(res.Source), observability.SourceStatusOK, len(res.Papers), res.Duration.Seconds())
		}
		groups = append(groups, res.Papers)
	}

	return groups, failures
}

// enhance resolves PDF links for one source's records in parallel, drops
// records left without a trusted link and caps the list at maxResults.
func (a *Aggregator) enhance(r *run, records []domain.PaperRecord) []domain.PaperRecord {
	resolved := make([]domain.PaperRecord, len(records))
	rules := make([]pdfresolve.Rule, len(records))

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resolved[i], rules[i] = r.resolver.ResolveWithRule(records[i])
		}(i)
	}
	wg.Wait()

	if a.metrics != nil {
		for _, rule := range rules {
			a.metrics.RecordPDFResolution(string(rule))
		}
	}

	out := resolved[:0]
	for _, rec := range resolved {
		if r.trust != nil && !r.trust.IsTrusted(rec.ResolvedPDFURL) {
			continue
		}
		out = append(out, rec)
		if len(out) == r.maxResults {
			break
		}
	}
	return out
}

func (a *Aggregator) transition(r *run, state State) {
	r.logger.Debug().Str("state", string(state)).Msg("search state")
	if a.observe != nil {
		a.observe(r.searchID, state)
	}
}

// shouldRetryWithOriginal reports whether re-fetching with the raw query
// could find something the analyzed query did not.
func shouldRetryWithOriginal(aq *domain.AnalyzedQuery) bool {
	if aq.Fallback {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(aq.NormalizedQuery), strings.TrimSpace(aq.Original))
}

func failureReason(err error) string {
	var analysisErr *domain.AnalysisError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return failureInvalidQuery
	case errors.As(err, &analysisErr) && analysisErr.Rejected:
		return failureRejected
	default:
		return failureAnalysisFailed
	}
}
