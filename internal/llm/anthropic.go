package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	anthropicAPIVersion        = "2023-06-01"
	defaultAnthropicBaseURL    = "https://api.anthropic.com"
	defaultAnthropicModel      = "claude-3-5-haiku-latest"
	defaultAnthropicRetryDelay = time.Second
)

// Messages API wire format, limited to the fields query analysis reads.
type (
	messagesRequest struct {
		Model       string             `json:"model"`
		MaxTokens   int                `json:"max_tokens"`
		System      string             `json:"system,omitempty"`
		Messages    []anthropicMessage `json:"messages"`
		Temperature float64            `json:"temperature"`
	}

	anthropicMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messagesResponse struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	anthropicErrorResponse struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

// AnthropicProvider analyzes research queries with the Anthropic Messages API.
// The analysis prompt goes in the system field and the reply's first text
// block is parsed as the analysis JSON.
type AnthropicProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
	retryDelay  time.Duration
}

// AnthropicConfig carries the connection settings for AnthropicProvider.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewAnthropicProvider creates an AnthropicProvider. Transient failures are
// retried maxRetries times, doubling the pause each time.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, maxTokens int, timeout time.Duration, maxRetries int) *AnthropicProvider {
	p := &AnthropicProvider{
		httpClient:  newAnalysisClient(timeout),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		maxRetries:  max(maxRetries, 0),
		retryDelay:  defaultAnthropicRetryDelay,
	}
	if p.baseURL == "" {
		p.baseURL = defaultAnthropicBaseURL
	}
	if p.model == "" {
		p.model = defaultAnthropicModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	return p
}

// AnalyzeQuery asks the model for the keywords, language and validity of query.
func (p *AnthropicProvider) AnalyzeQuery(ctx context.Context, query string) (*AnalysisResult, error) {
	system, user := BuildAnalysisPrompt(query)
	req := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
		Temperature: p.temperature,
	}

	return analyzeWithRetries(ctx, "anthropic", p.maxRetries, exponentialBackoff(p.retryDelay),
		func(ctx context.Context) (*AnalysisResult, error) {
			return p.message(ctx, req)
		})
}

// Provider returns "anthropic".
func (p *AnthropicProvider) Provider() string { return "anthropic" }

// Model returns the configured model.
func (p *AnthropicProvider) Model() string { return p.model }

// message sends one Messages request and parses the reply.
func (p *AnthropicProvider) message(ctx context.Context, req messagesRequest) (*AnalysisResult, error) {
	header := http.Header{}
	header.Set("x-api-key", p.apiKey)
	header.Set("anthropic-version", anthropicAPIVersion)

	raw, err := postJSON(ctx, p.httpClient, "anthropic", p.baseURL+"/v1/messages", header, req, parseAnthropicAPIError)
	if err != nil {
		return nil, err
	}

	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: %w: %v", ErrMalformedResponse, err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("anthropic: %w: no text content blocks", ErrMalformedResponse)
	}

	result, err := ParseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	result.Model = p.model
	if resp.Model != "" {
		result.Model = resp.Model
	}
	result.InputTokens = resp.Usage.InputTokens
	result.OutputTokens = resp.Usage.OutputTokens
	return result, nil
}

func parseAnthropicAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Provider: "anthropic", StatusCode: status, Message: string(body)}

	var errResp anthropicErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
	}
	return apiErr
}
