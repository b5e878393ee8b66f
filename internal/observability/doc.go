// Package observability provides logging and metrics support for the paper
// search service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for searches, query analysis, sources, and PDF links
//   - Context helpers for propagating request and search identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger = observability.WithSearchContext(logger, searchID, query)
//	logger.Info().Int("keywords", len(keywords)).Msg("query analyzed")
//
// # Metrics
//
// Initialize metrics against the default registry, or an isolated one in tests:
//
//	metrics := observability.NewMetrics(observability.DefaultNamespace)
//	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
//
// Record metrics:
//
//	metrics.RecordSearchStarted()
//	metrics.RecordSourceSearch("arxiv", observability.SourceStatusOK, 5, 0.8)
//	metrics.RecordPDFResolution("doi_nature")
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - search_id: Search identifier returned to the caller
//   - query: User's raw query
//   - source: Paper source (arxiv, semantic_scholar)
//   - paper_title: Title of a paper record
//   - canonical_id: Canonical paper identifier (doi:, arxiv:, pmc:, pubmed:)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
