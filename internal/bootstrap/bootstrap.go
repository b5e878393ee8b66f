// Package bootstrap assembles the search pipeline from loaded configuration.
// Both the HTTP server and the CLI build their dependencies here.
package bootstrap

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/analyzer"
	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
	"github.com/helixir/paper-search-service/internal/papersources/arxiv"
	"github.com/helixir/paper-search-service/internal/papersources/semanticscholar"
	"github.com/helixir/paper-search-service/internal/pdf"
	"github.com/helixir/paper-search-service/internal/retrieval"
)

// App holds the wired dependencies of one process.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Sources    *papersources.Registry
	Analyzer   *analyzer.Analyzer
	Aggregator *retrieval.Aggregator
	Downloader *pdf.Downloader
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *zerolog.Logger
	capability llm.QueryAnalyzer
	sources    []papersources.PaperSource
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithQueryAnalyzer replaces the language model built from cfg.LLM.
func WithQueryAnalyzer(qa llm.QueryAnalyzer) Option {
	return func(o *options) { o.capability = qa }
}

// WithSources replaces the adapters built from cfg.Sources.
func WithSources(sources ...papersources.PaperSource) Option {
	return func(o *options) { o.sources = sources }
}

// New builds logger, metrics, adapters, analyzer and aggregator from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := NewLogger(cfg.Logging)
	if o.logger != nil {
		logger = *o.logger
	}

	// Metrics always exist; an unregistered set is used when exposure is off.
	var reg *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetricsWithRegistry(cfg.Metrics.Namespace, reg)
	} else {
		metrics = observability.NewMetricsWithRegistry(cfg.Metrics.Namespace, nil)
	}

	sources := papersources.NewRegistry()
	if o.sources != nil {
		for _, s := range o.sources {
			sources.Register(s)
		}
	} else {
		registerPaperSources(sources, cfg, metrics, logger)
	}

	capability := o.capability
	if capability == nil {
		var err error
		capability, err = newCapability(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	qa := analyzer.New(capability, analyzer.Config{
		Timeout:         cfg.Analyzer.Timeout,
		FallbackOnError: cfg.Analyzer.FallbackOnError,
	}, logger, analyzer.WithMetrics(metrics))

	agg := retrieval.New(qa, sources, logger, retrieval.WithMetrics(metrics))

	downloader := pdf.NewDownloader(pdf.Config{
		Timeout:   cfg.PDF.DownloadTimeout,
		MaxSize:   cfg.PDF.MaxDownloadSize,
		UserAgent: cfg.PDF.UserAgent,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   reg,
		Metrics:    metrics,
		Sources:    sources,
		Analyzer:   qa,
		Aggregator: agg,
		Downloader: downloader,
	}, nil
}

// NewLogger maps the logging section onto an observability logger.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	return observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: cfg.TimeFormat,
	})
}

// newCapability builds the configured language model. Without an API key
// it returns nil, which config validation only allows when the analyzer
// falls back on error.
func newCapability(cfg *config.Config, logger zerolog.Logger) (llm.QueryAnalyzer, error) {
	provider := strings.ToLower(cfg.LLM.Provider)
	key := cfg.LLM.OpenAI.APIKey
	if provider == config.ProviderAnthropic {
		key = cfg.LLM.Anthropic.APIKey
	}
	if key == "" {
		logger.Warn().
			Str("provider", provider).
			Msg("no LLM API key configured; queries will be tokenized without analysis")
		return nil, nil
	}

	qa, err := llm.NewQueryAnalyzer(llm.FactoryConfig{
		Provider:    provider,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create query analyzer: %w", err)
	}
	logger.Info().
		Str("provider", qa.Provider()).
		Str("model", qa.Model()).
		Msg("query analyzer initialized")
	return qa, nil
}

// registerPaperSources registers every enabled source adapter.
func registerPaperSources(registry *papersources.Registry, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) {
	// arXiv.
	if cfg.Sources.ArXiv.Enabled {
		axCfg := cfg.Sources.ArXiv
		axClient := arxiv.New(arxiv.Config{
			BaseURL:    axCfg.BaseURL,
			Timeout:    axCfg.Timeout,
			RateLimit:  axCfg.RateLimit,
			MaxResults: axCfg.MaxResults,
			Enabled:    true,
		}, papersources.WithMetrics(metrics))
		registry.Register(axClient)
		logger.Info().Msg("registered paper source: arXiv")
	}

	// Semantic Scholar. Over-fetching keeps enough records when the
	// trusted-link filter is on.
	if cfg.Sources.SemanticScholar.Enabled {
		ssCfg := semanticscholar.Config{
			BaseURL:         cfg.Sources.SemanticScholar.BaseURL,
			APIKey:          cfg.Sources.SemanticScholar.APIKey,
			Timeout:         cfg.Sources.SemanticScholar.Timeout,
			RateLimit:       cfg.Sources.SemanticScholar.RateLimit,
			MaxResults:      cfg.Sources.SemanticScholar.MaxResults,
			Sort:            cfg.Sources.SemanticScholar.Sort,
			OverFetch:       cfg.PDF.RequireTrusted,
			OverFetchFactor: cfg.Sources.SemanticScholar.OverFetchFactor,
			Enabled:         true,
		}
		httpClient := papersources.NewHTTPClient(ssCfg.HTTPClientConfig(), papersources.WithMetrics(metrics))
		registry.Register(semanticscholar.NewClient(ssCfg, httpClient))
		logger.Info().
			Bool("api_key", ssCfg.APIKey != "").
			Str("sort", ssCfg.Sort).
			Msg("registered paper source: Semantic Scholar")
	}
}
