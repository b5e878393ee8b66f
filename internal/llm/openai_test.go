package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time check that OpenAIProvider implements QueryAnalyzer.
var _ QueryAnalyzer = (*OpenAIProvider)(nil)

// newOpenAITestServer creates an httptest server that responds with the given handler.
func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newOpenAITestProvider creates an OpenAIProvider configured to use the test server.
func newOpenAITestProvider(t *testing.T, serverURL string, maxRetries int) *OpenAIProvider {
	t.Helper()
	cfg := OpenAIConfig{
		APIKey:  "test-api-key",
		Model:   "gpt-4o-mini",
		BaseURL: serverURL,
	}
	provider := NewOpenAIProvider(cfg, 0.3, 4096, 10*time.Second, maxRetries)
	provider.retryDelay = 10 * time.Millisecond
	return provider
}

// writeChatResponse writes a chat completion whose first choice carries content.
func writeChatResponse(w http.ResponseWriter, content string) {
	resp := map[string]any{
		"id":    "chatcmpl-abc123",
		"model": "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{
			{"index": 0, "message": chatMessage{Role: "assistant", Content: content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 150, "completion_tokens": 45, "total_tokens": 195},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func TestOpenAIProvider_AnalyzeQuery(t *testing.T) {
	t.Run("successful analysis returns keywords and metadata", func(t *testing.T) {
		var receivedReq chatRequest
		var receivedAuthHeader string

		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			receivedAuthHeader = r.Header.Get("Authorization")

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()
			require.NoError(t, json.Unmarshal(body, &receivedReq))

			writeChatResponse(w, `{"is_valid": true, "search_query": "generative adversarial networks for image synthesis",
				"keywords": ["generative adversarial networks", "image synthesis", "GAN"], "language": "zh",
				"intent": "recent methods", "message": ""}`)
		})

		provider := newOpenAITestProvider(t, server.URL, 0)
		result, err := provider.AnalyzeQuery(context.Background(), "生成对抗网络在图像合成中的应用")

		require.NoError(t, err)
		require.NotNil(t, result)

		assert.True(t, result.IsValid)
		assert.Equal(t, []string{"generative adversarial networks", "image synthesis", "GAN"}, result.Keywords)
		assert.Equal(t, "generative adversarial networks for image synthesis", result.SearchQuery)
		assert.Equal(t, "zh", result.Language)
		assert.Equal(t, "recent methods", result.Intent)
		assert.Equal(t, "gpt-4o-mini-2024-07-18", result.Model)
		assert.Equal(t, 150, result.InputTokens)
		assert.Equal(t, 45, result.OutputTokens)

		assert.Equal(t, "Bearer test-api-key", receivedAuthHeader)
		assert.Equal(t, "gpt-4o-mini", receivedReq.Model)
		assert.Equal(t, 0.3, receivedReq.Temperature)
		assert.Equal(t, 4096, receivedReq.MaxTokens)
		require.NotNil(t, receivedReq.ResponseFormat)
		assert.Equal(t, "json_object", receivedReq.ResponseFormat.Type)
		require.Len(t, receivedReq.Messages, 2)
		assert.Equal(t, "system", receivedReq.Messages[0].Role)
		assert.Equal(t, "user", receivedReq.Messages[1].Role)
		assert.Contains(t, receivedReq.Messages[1].Content, "生成对抗网络在图像合成中的应用")
	})

	t.Run("fenced content is parsed", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeChatResponse(w, "```json\n{\"is_valid\": true, \"keywords\": [\"transformer\", \"Transformer\"]}\n```")
		})

		provider := newOpenAITestProvider(t, server.URL, 0)
		result, err := provider.AnalyzeQuery(context.Background(), "transformers")

		require.NoError(t, err)
		assert.Equal(t, []string{"transformer"}, result.Keywords)
	})

	t.Run("rejection is returned as a result", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeChatResponse(w, `{"is_valid": false, "keywords": [], "message": "This is a cooking question."}`)
		})

		provider := newOpenAITestProvider(t, server.URL, 0)
		result, err := provider.AnalyzeQuery(context.Background(), "how do I bake bread")

		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Equal(t, "This is a cooking question.", result.Message)
	})

	t.Run("context cancellation stops request", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		})

		provider := newOpenAITestProvider(t, server.URL, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := provider.AnalyzeQuery(ctx, "test")

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestOpenAIProvider_AnalyzeQuery_APIError(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		body          string
		maxRetries    int
		wantCalls     int32
		wantType      string
		wantTransient bool
	}{
		{
			name:       "401 is not retried",
			statusCode: http.StatusUnauthorized,
			body:       `{"error": {"message": "Incorrect API key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			maxRetries: 2,
			wantCalls:  1,
			wantType:   "invalid_request_error",
		},
		{
			name:          "429 is retried until exhausted",
			statusCode:    http.StatusTooManyRequests,
			body:          `{"error": {"message": "Rate limit reached", "type": "rate_limit_error"}}`,
			maxRetries:    2,
			wantCalls:     3,
			wantType:      "rate_limit_error",
			wantTransient: true,
		},
		{
			name:          "500 with non-json body",
			statusCode:    http.StatusInternalServerError,
			body:          "upstream exploded",
			maxRetries:    1,
			wantCalls:     2,
			wantTransient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			})

			provider := newOpenAITestProvider(t, server.URL, tt.maxRetries)
			result, err := provider.AnalyzeQuery(context.Background(), "test")

			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantCalls, calls.Load())

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "openai", apiErr.Provider)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.wantTransient, apiErr.IsTransient())
		})
	}
}

func TestOpenAIProvider_AnalyzeQuery_RetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeChatResponse(w, `{"keywords": ["attention"]}`)
	})

	provider := newOpenAITestProvider(t, server.URL, 2)
	result, err := provider.AnalyzeQuery(context.Background(), "attention")

	require.NoError(t, err)
	assert.Equal(t, []string{"attention"}, result.Keywords)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProvider_AnalyzeQuery_MalformedResponse(t *testing.T) {
	t.Run("non-JSON content is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeChatResponse(w, "I cannot help with that.")
		})

		provider := newOpenAITestProvider(t, server.URL, 2)
		_, err := provider.AnalyzeQuery(context.Background(), "test")

		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("malformed wrapper", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"choices": [`))
		})

		provider := newOpenAITestProvider(t, server.URL, 0)
		_, err := provider.AnalyzeQuery(context.Background(), "test")

		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("empty choices", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"id": "x", "choices": []}`))
		})

		provider := newOpenAITestProvider(t, server.URL, 0)
		_, err := provider.AnalyzeQuery(context.Background(), "test")

		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Contains(t, err.Error(), "empty choices")
	})
}

func TestNewOpenAIProvider(t *testing.T) {
	t.Run("applies default values for empty config", func(t *testing.T) {
		p := NewOpenAIProvider(OpenAIConfig{}, 0.3, 0, 0, -1)

		assert.Equal(t, "openai", p.Provider())
		assert.Equal(t, defaultOpenAIModel, p.Model())
		assert.Equal(t, defaultOpenAIBaseURL, p.baseURL)
		assert.Equal(t, defaultMaxTokens, p.maxTokens)
		assert.Equal(t, 60*time.Second, p.httpClient.Timeout)
		assert.Equal(t, 0, p.maxRetries)
	})

	t.Run("uses provided config values", func(t *testing.T) {
		p := NewOpenAIProvider(OpenAIConfig{
			APIKey:  "sk-test",
			Model:   "gpt-4o",
			BaseURL: "https://llm.internal/v1",
		}, 0.7, 1024, 15*time.Second, 3)

		assert.Equal(t, "gpt-4o", p.Model())
		assert.Equal(t, "https://llm.internal/v1", p.baseURL)
		assert.Equal(t, 1024, p.maxTokens)
		assert.Equal(t, 0.7, p.temperature)
		assert.Equal(t, 15*time.Second, p.httpClient.Timeout)
		assert.Equal(t, 3, p.maxRetries)
	})
}
