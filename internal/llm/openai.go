package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 4096
	defaultOpenAIRetryDelay = 2 * time.Second
)

// Chat Completions wire format, limited to the fields query analysis reads.
type (
	chatRequest struct {
		Model          string          `json:"model"`
		Messages       []chatMessage   `json:"messages"`
		Temperature    float64         `json:"temperature"`
		MaxTokens      int             `json:"max_tokens,omitempty"`
		ResponseFormat *responseFormat `json:"response_format,omitempty"`
	}

	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	responseFormat struct {
		Type string `json:"type"`
	}

	chatResponse struct {
		Model   string `json:"model"`
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	openAIErrorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
)

// OpenAIProvider turns a research query into an AnalysisResult through a
// Chat Completions endpoint in JSON mode. BaseURL may point at any
// OpenAI-compatible server.
type OpenAIProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
	retryDelay  time.Duration
}

// OpenAIConfig carries the connection settings for OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	Model   string // defaults to gpt-4o-mini
	BaseURL string // defaults to the public API
}

// NewOpenAIProvider creates an OpenAIProvider. Rate limits, 5xx responses and
// network failures are retried maxRetries times with a linearly growing pause.
func NewOpenAIProvider(cfg OpenAIConfig, temperature float64, maxTokens int, timeout time.Duration, maxRetries int) *OpenAIProvider {
	p := &OpenAIProvider{
		httpClient:  newAnalysisClient(timeout),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		maxRetries:  max(maxRetries, 0),
		retryDelay:  defaultOpenAIRetryDelay,
	}
	if p.baseURL == "" {
		p.baseURL = defaultOpenAIBaseURL
	}
	if p.model == "" {
		p.model = defaultOpenAIModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	return p
}

// AnalyzeQuery asks the model for the keywords, language and validity of query.
func (p *OpenAIProvider) AnalyzeQuery(ctx context.Context, query string) (*AnalysisResult, error) {
	system, user := BuildAnalysisPrompt(query)
	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	return analyzeWithRetries(ctx, "openai", p.maxRetries, linearBackoff(p.retryDelay),
		func(ctx context.Context) (*AnalysisResult, error) {
			return p.complete(ctx, req)
		})
}

// Provider returns "openai".
func (p *OpenAIProvider) Provider() string { return "openai" }

// Model returns the configured model.
func (p *OpenAIProvider) Model() string { return p.model }

// complete sends one completion and parses the first choice as an analysis.
func (p *OpenAIProvider) complete(ctx context.Context, req chatRequest) (*AnalysisResult, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)

	raw, err := postJSON(ctx, p.httpClient, "openai", p.baseURL+"/chat/completions", header, req, parseOpenAIAPIError)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("openai: %w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w: empty choices", ErrMalformedResponse)
	}

	result, err := ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	result.Model = p.model
	if resp.Model != "" {
		result.Model = resp.Model
	}
	result.InputTokens = resp.Usage.PromptTokens
	result.OutputTokens = resp.Usage.CompletionTokens
	return result, nil
}

func parseOpenAIAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Provider: "openai", StatusCode: status, Message: string(body)}

	var errResp openAIErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}
