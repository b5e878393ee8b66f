package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr, discard).
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var output io.Writer

	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "discard", "none":
		output = io.Discard
	default:
		output = os.Stdout
	}

	return NewLoggerWithWriter(cfg, output)
}

// NewLoggerWithWriter creates a logger that writes to w, applying the level,
// format and caller settings from cfg. cfg.Output is ignored.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	format := strings.ToLower(cfg.Format)
	if format == "console" || format == "pretty" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.AddSource {
		logger = logger.Caller()
	}

	log := logger.Logger()

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return log.Level(level)
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithSearchContext adds the search ID and raw query to a logger.
func WithSearchContext(logger zerolog.Logger, searchID, query string) zerolog.Logger {
	return logger.With().
		Str("search_id", searchID).
		Str("query", query).
		Logger()
}

// WithSourceContext adds the paper source to a logger.
func WithSourceContext(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().
		Str("source", source).
		Logger()
}

// WithPaperContext adds paper-related fields to a logger.
func WithPaperContext(logger zerolog.Logger, title, canonicalID string) zerolog.Logger {
	return logger.With().
		Str("paper_title", title).
		Str("canonical_id", canonicalID).
		Logger()
}

// WithRequestContext adds the request and search IDs carried by ctx fields to a logger.
func WithRequestContext(logger zerolog.Logger, rc RequestContext) zerolog.Logger {
	lc := logger.With()
	if rc.RequestID != "" {
		lc = lc.Str("request_id", rc.RequestID)
	}
	if rc.SearchID != "" {
		lc = lc.Str("search_id", rc.SearchID)
	}
	return lc.Logger()
}
