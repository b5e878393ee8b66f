package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace is the metric name prefix used by the service binaries.
const DefaultNamespace = "paper_search"

// Analysis outcome labels.
const (
	AnalysisOutcomeLLM      = "llm"
	AnalysisOutcomeFallback = "fallback"
	AnalysisOutcomeRejected = "rejected"
	AnalysisOutcomeError    = "error"
)

// Source search status labels.
const (
	SourceStatusOK      = "ok"
	SourceStatusFailed  = "failed"
	SourceStatusTimeout = "timeout"
)

// Metrics contains all Prometheus metrics for the paper search service.
// Metrics are organized by subsystem: searches, query analysis, sources,
// papers, PDF resolution, and LLM operations.
type Metrics struct {
	// SearchesStarted counts retrieval requests accepted by the aggregator.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts retrievals that produced a result (possibly empty).
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts retrievals that ended in an error, labeled by reason.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes the end-to-end retrieval duration in seconds.
	SearchDuration prometheus.Histogram

	// PapersPerSearch observes the number of papers returned per retrieval.
	PapersPerSearch prometheus.Histogram

	// EmptyResults counts retrievals that returned zero papers.
	EmptyResults prometheus.Counter

	// QueryAnalyses counts analyzer runs, labeled by outcome.
	QueryAnalyses *prometheus.CounterVec

	// KeywordsPerQuery observes the number of keywords produced per analysis.
	KeywordsPerQuery prometheus.Histogram

	// SourceSearches counts per-source fan-out calls, labeled by source and status.
	SourceSearches *prometheus.CounterVec

	// SourceSearchDuration observes per-source fan-out duration in seconds.
	SourceSearchDuration *prometheus.HistogramVec

	// PapersBySource counts records returned by each source before merging.
	PapersBySource *prometheus.CounterVec

	// PapersDuplicate counts records dropped by title deduplication.
	PapersDuplicate prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to paper source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to paper source APIs, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to paper source APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from paper source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// PDFResolutions counts PDF URL resolutions, labeled by the rule that produced the link.
	PDFResolutions *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered with reg.
// A nil reg creates unregistered collectors.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Searches
		SearchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started",
		}),
		SearchesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed",
		}),
		SearchesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed by reason",
		}, []string{"reason"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		PapersPerSearch: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		EmptyResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_empty_total",
			Help:      "Total number of paper searches that returned no papers",
		}),

		// Query analysis
		QueryAnalyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_analyses_total",
			Help:      "Total number of query analyses by outcome",
		}, []string{"outcome"}),
		KeywordsPerQuery: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keywords_per_query",
			Help:      "Number of keywords extracted per query",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		}),

		// Sources
		SourceSearches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_total",
			Help:      "Total number of per-source searches by status",
		}, []string{"source", "status"}),
		SourceSearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_search_duration_seconds",
			Help:      "Duration of per-source searches in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		PapersBySource: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total number of papers returned by source before merging",
		}, []string{"source"}),
		PapersDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate papers removed during merging",
		}),
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to paper sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// PDF resolution
		PDFResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_resolutions_total",
			Help:      "Total number of PDF links resolved by rule",
		}, []string{"rule"}),

		// LLM
		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
	}
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted() {
	m.SearchesStarted.Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(paperCount int, durationSeconds float64) {
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.PapersPerSearch.Observe(float64(paperCount))
	if paperCount == 0 {
		m.EmptyResults.Inc()
	}
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(reason string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(reason).Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// RecordQueryAnalysis records the outcome of a query analysis.
func (m *Metrics) RecordQueryAnalysis(outcome string, keywordCount int) {
	m.QueryAnalyses.WithLabelValues(outcome).Inc()
	if keywordCount > 0 {
		m.KeywordsPerQuery.Observe(float64(keywordCount))
	}
}

// RecordSourceSearch records a per-source search and the records it returned.
func (m *Metrics) RecordSourceSearch(source, status string, paperCount int, durationSeconds float64) {
	m.SourceSearches.WithLabelValues(source, status).Inc()
	m.SourceSearchDuration.WithLabelValues(source).Observe(durationSeconds)
	if paperCount > 0 {
		m.PapersBySource.WithLabelValues(source).Add(float64(paperCount))
	}
}

// RecordPaperDuplicates records multiple duplicate papers in a single call.
func (m *Metrics) RecordPaperDuplicates(count int) {
	m.PapersDuplicate.Add(float64(count))
}

// RecordSourceRequest records a request to a paper source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a paper source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordPDFResolution records which resolution rule produced a PDF link.
func (m *Metrics) RecordPDFResolution(rule string) {
	m.PDFResolutions.WithLabelValues(rule).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}
