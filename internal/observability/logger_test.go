package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	t.Run("creates logger with default config", func(t *testing.T) {
		cfg := DefaultLoggingConfig()
		logger := NewLogger(cfg)

		// Logger should be valid (non-zero)
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with debug level", func(t *testing.T) {
		cfg := LoggingConfig{
			Level:  "debug",
			Format: "json",
			Output: "stdout",
		}
		logger := NewLogger(cfg)

		// Debug level should be enabled
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with console format", func(t *testing.T) {
		cfg := LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		}
		logger := NewLogger(cfg)

		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with pretty format", func(t *testing.T) {
		cfg := LoggingConfig{
			Level:  "info",
			Format: "pretty",
			Output: "stderr",
		}
		logger := NewLogger(cfg)

		assert.NotEqual(t, zerolog.Logger{}, logger)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"TRACE", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"FATAL", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"PANIC", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLevel(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Run("writes json to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)
		logger.Debug().Str("k", "v").Msg("hello")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		assert.Equal(t, "hello", logEntry["message"])
		assert.Equal(t, "v", logEntry["k"])
		assert.Contains(t, logEntry, "time")
	})

	t.Run("filters below configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)
		logger.Info().Msg("dropped")
		assert.Empty(t, buf.String())

		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
}

func TestWithSearchContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithSearchContext(logger, "search-123", "transformer attention")
	enriched.Info().Msg("search started")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "search-123", logEntry["search_id"])
	assert.Equal(t, "transformer attention", logEntry["query"])
	assert.Equal(t, "search started", logEntry["message"])
}

func TestWithSourceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithSourceContext(logger, "semantic_scholar")
	enriched.Info().Msg("source queried")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "semantic_scholar", logEntry["source"])
}

func TestWithPaperContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithPaperContext(logger, "Attention Is All You Need", "arxiv:1706.03762")
	enriched.Info().Msg("paper processed")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "Attention Is All You Need", logEntry["paper_title"])
	assert.Equal(t, "arxiv:1706.03762", logEntry["canonical_id"])
}

func TestWithRequestContext(t *testing.T) {
	t.Run("adds present identifiers", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		enriched := WithRequestContext(logger, RequestContext{RequestID: "req-1", SearchID: "search-1"})
		enriched.Info().Msg("request")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		assert.Equal(t, "req-1", logEntry["request_id"])
		assert.Equal(t, "search-1", logEntry["search_id"])
	})

	t.Run("omits empty identifiers", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		enriched := WithRequestContext(logger, RequestContext{})
		enriched.Info().Msg("request")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		assert.NotContains(t, logEntry, "request_id")
		assert.NotContains(t, logEntry, "search_id")
	})
}

func TestLoggerContextChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithSearchContext(logger, "search-1", "graph neural networks")
	enriched = WithSourceContext(enriched, "arxiv")
	enriched.Info().Msg("chained context")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "search-1", logEntry["search_id"])
	assert.Equal(t, "graph neural networks", logEntry["query"])
	assert.Equal(t, "arxiv", logEntry["source"])
}
