package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// defaultMaxResponseBytes caps how much of a source response is read into memory.
const defaultMaxResponseBytes = 10 << 20

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source labels requests in errors and metrics (e.g. "arxiv").
	Source string

	// Timeout is the request timeout for a single HTTP attempt.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts. Zero selects the
	// default; a negative value disables retries.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string

	// MaxResponseBytes caps the bytes read by Get.
	MaxResponseBytes int64
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
	metrics     *observability.Metrics
}

// HTTPClientOption customizes an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithMetrics records request counts, durations and failures on m.
func WithMetrics(m *observability.Metrics) HTTPClientOption {
	return func(c *HTTPClient) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client applies rate limiting before each request and automatically
// retries on 429 (Too Many Requests) and 5xx server errors.
func NewHTTPClient(cfg HTTPClientConfig, opts ...HTTPClientOption) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 3
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-PaperSearch/1.0"
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.Source == "" {
		cfg.Source = "unknown"
	}

	c := &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes an HTTP request with rate limiting and retries.
// It waits for the rate limiter before each request attempt,
// sets the User-Agent and optional API key headers,
// and retries on 429 (Too Many Requests) with Retry-After support
// and on 5xx server errors.
//
// When retries are exhausted on a 429 the error is a *domain.RateLimitError.
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}
			return nil, lastErr
		}

		if !c.shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		retryDelay := c.getRetryDelay(resp)
		drainAndClose(resp)

		if resp.StatusCode == http.StatusTooManyRequests && c.metrics != nil {
			c.metrics.RecordSourceRateLimited(c.config.Source)
		}

		if attempt < c.config.MaxRetries {
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			if err := c.waitForRetry(req.Context(), retryDelay); err != nil {
				return nil, err
			}
			if err := c.resetRequestBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.NewRateLimitError(c.config.Source, retryDelay)
		}
		return nil, domain.NewExternalAPIError(c.config.Source, resp.StatusCode,
			fmt.Sprintf("max retries exhausted after %d attempts", c.config.MaxRetries+1),
			domain.ErrServiceUnavailable)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// Get performs a GET request against rawURL with the given query parameters
// and returns the response body. Non-2xx responses become a
// *domain.ExternalAPIError carrying a snippet of the body. endpoint labels
// the request in metrics.
func (c *HTTPClient) Get(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	body, err := c.get(req)
	if c.metrics != nil {
		c.metrics.RecordSourceRequest(c.config.Source, endpoint, time.Since(start).Seconds())
		if err != nil {
			c.metrics.RecordSourceRequestFailed(c.config.Source, endpoint, errorType(err))
		}
	}
	return body, err
}

func (c *HTTPClient) get(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewExternalAPIError(c.config.Source, resp.StatusCode, snippet(body), nil)
	}
	return body, nil
}

// errorType classifies an error for metric labels.
func errorType(err error) string {
	var rle *domain.RateLimitError
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &rle):
		return "rate_limit"
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 500 {
			return "server_error"
		}
		return "client_error"
	default:
		return "network"
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay determines how long to wait before retrying.
// It respects the Retry-After header if present, otherwise uses the configured retry delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		delay := time.Until(t)
		if delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
