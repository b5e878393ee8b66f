// Package config provides configuration management for the paper search service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/retrieval"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PAPERSEARCH"

// Supported LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for the paper search service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains the query analysis model settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Analyzer controls how query analysis failures are handled.
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	// Sources contains paper source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Search contains retrieval pipeline settings.
	Search SearchConfig `mapstructure:"search"`
	// PDF contains link resolution and download settings.
	PDF PDFConfig `mapstructure:"pdf"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP API port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSAllowedOrigins lists origins allowed to call the API.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, discard).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the HTTP timeout for a single LLM API call.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// MaxTokens bounds the completion length.
	MaxTokens int `mapstructure:"max_tokens"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from PAPERSEARCH_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from PAPERSEARCH_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnalyzerConfig holds query analyzer settings.
type AnalyzerConfig struct {
	// FallbackOnError tokenizes the raw query when the model fails.
	FallbackOnError bool `mapstructure:"fallback_on_error"`
	// Timeout bounds one analysis including retries.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SourcesConfig holds configuration for the paper source APIs.
type SourcesConfig struct {
	// ArXiv contains arXiv API settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar SemanticScholarConfig `mapstructure:"semantic_scholar"`
}

// SourceConfig holds settings shared by every paper source API.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second. Zero uses the source preset.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// ArXivConfig holds arXiv settings.
type ArXivConfig struct {
	SourceConfig `mapstructure:",squash"`
	// Categories restricts searches to these subject classes.
	Categories []string `mapstructure:"categories"`
}

// SemanticScholarConfig holds Semantic Scholar settings.
type SemanticScholarConfig struct {
	SourceConfig `mapstructure:",squash"`
	// APIKey is the API key (loaded from PAPERSEARCH_SOURCES_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// Sort switches to the bulk endpoint with this order (e.g. "citationCount:desc").
	Sort string `mapstructure:"sort"`
	// OverFetchFactor multiplies the request size when trusted PDFs are required.
	OverFetchFactor int `mapstructure:"over_fetch_factor"`
}

// SearchConfig holds retrieval pipeline settings.
type SearchConfig struct {
	// MaxResults bounds the merged result.
	MaxResults int `mapstructure:"max_results"`
	// FetchTimeout is the shared deadline for all source searches.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// RetryWithOriginalQuery re-runs an empty search with the raw query text.
	RetryWithOriginalQuery bool `mapstructure:"retry_with_original_query"`
}

// PDFConfig holds PDF link resolution and download settings.
type PDFConfig struct {
	// EnhancementEnabled turns on identifier- and DOI-based PDF links.
	EnhancementEnabled bool `mapstructure:"enhancement_enabled"`
	// RequireTrusted drops records whose resolved link is not trusted.
	RequireTrusted bool `mapstructure:"require_trusted"`
	// TrustedSources lists trusted "host" or "host/path" entries.
	TrustedSources []string `mapstructure:"trusted_sources"`
	// DownloadTimeout bounds one PDF download.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// MaxDownloadSize caps a downloaded PDF in bytes.
	MaxDownloadSize int64 `mapstructure:"max_download_size"`
	// UserAgent is sent with PDF downloads.
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// EnabledSources returns the enabled sources in priority order.
func (c *Config) EnabledSources() []domain.SourceType {
	out := make([]domain.SourceType, 0, 2)
	if c.Sources.ArXiv.Enabled {
		out = append(out, domain.SourceTypeArXiv)
	}
	if c.Sources.SemanticScholar.Enabled {
		out = append(out, domain.SourceTypeSemanticScholar)
	}
	return out
}

// RetrievalConfig maps the loaded configuration into the settings a
// retrieval call depends on.
func (c *Config) RetrievalConfig() retrieval.Config {
	return retrieval.Config{
		MaxResults:              c.Search.MaxResults,
		EnabledSources:          c.EnabledSources(),
		ArxivCategories:         append([]string(nil), c.Sources.ArXiv.Categories...),
		EnablePDFEnhancement:    c.PDF.EnhancementEnabled,
		AnalyzerFallbackOnError: c.Analyzer.FallbackOnError,
		AnalyzerTimeout:         c.Analyzer.Timeout,
		FetchTimeout:            c.Search.FetchTimeout,
		RequireTrustedPDF:       c.PDF.RequireTrusted,
		TrustedPDFSources:       append([]string(nil), c.PDF.TrustedSources...),
		RetryWithOriginalQuery:  c.Search.RetryWithOriginalQuery,
	}
}

// Load loads configuration from a .env file, environment variables and
// config files, in increasing order of precedence for the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-search-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv(EnvPrefix + "_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv(EnvPrefix + "_LLM_ANTHROPIC_API_KEY")
	cfg.Sources.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_search")

	// LLM defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Analyzer defaults
	v.SetDefault("analyzer.fallback_on_error", false)
	v.SetDefault("analyzer.timeout", retrieval.DefaultAnalyzerTimeout.String())

	// Sources defaults - arXiv
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.arxiv.timeout", "30s")
	v.SetDefault("sources.arxiv.rate_limit", 0.0)
	v.SetDefault("sources.arxiv.max_results", 100)
	v.SetDefault("sources.arxiv.categories", retrieval.DefaultArxivCategories)

	// Sources defaults - Semantic Scholar
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.semantic_scholar.timeout", "30s")
	v.SetDefault("sources.semantic_scholar.rate_limit", 0.0)
	v.SetDefault("sources.semantic_scholar.max_results", 100)
	v.SetDefault("sources.semantic_scholar.sort", "")
	v.SetDefault("sources.semantic_scholar.over_fetch_factor", 10)

	// Search defaults
	v.SetDefault("search.max_results", retrieval.DefaultMaxResults)
	v.SetDefault("search.fetch_timeout", retrieval.DefaultFetchTimeout.String())
	v.SetDefault("search.retry_with_original_query", false)

	// PDF defaults
	v.SetDefault("pdf.enhancement_enabled", true)
	v.SetDefault("pdf.require_trusted", false)
	v.SetDefault("pdf.trusted_sources", []string{})
	v.SetDefault("pdf.download_timeout", "60s")
	v.SetDefault("pdf.max_download_size", 100*1024*1024)
	v.SetDefault("pdf.user_agent", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}
	if c.Metrics.Enabled && c.Server.MetricsPort == c.Server.HTTPPort {
		return fmt.Errorf("metrics port must differ from HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate search config
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive")
	}
	if c.Search.FetchTimeout < 0 || c.Analyzer.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if len(c.EnabledSources()) == 0 {
		return fmt.Errorf("at least one paper source must be enabled")
	}

	// Validate LLM config
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM max_tokens must be positive")
	}

	// Without fallback, the configured provider must be usable.
	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" && !c.Analyzer.FallbackOnError {
			return fmt.Errorf("LLM provider %q requires %s_LLM_OPENAI_API_KEY to be set", c.LLM.Provider, EnvPrefix)
		}
	case ProviderAnthropic:
		if c.LLM.Anthropic.APIKey == "" && !c.Analyzer.FallbackOnError {
			return fmt.Errorf("LLM provider %q requires %s_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider, EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	return nil
}

// ParseSources resolves user-supplied source names, rejecting unknown ones
// and ones that are disabled in this configuration.
func (c *Config) ParseSources(names []string) ([]domain.SourceType, error) {
	types, err := domain.ParseSourceTypes(names)
	if err != nil {
		return nil, err
	}
	enabled := c.EnabledSources()
	for _, st := range types {
		if !containsSource(enabled, st) {
			return nil, fmt.Errorf("%w: source %q is disabled", domain.ErrInvalidInput, st)
		}
	}
	return types, nil
}

func containsSource(list []domain.SourceType, st domain.SourceType) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}
