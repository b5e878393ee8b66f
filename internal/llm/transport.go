package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAnalysisTimeout = 60 * time.Second
	maxResponseBytes       = 10 << 20
)

// backoff returns the pause before retry n, counting from 1.
type backoff func(n int) time.Duration

func linearBackoff(base time.Duration) backoff {
	return func(n int) time.Duration { return base * time.Duration(n) }
}

func exponentialBackoff(base time.Duration) backoff {
	return func(n int) time.Duration { return base * time.Duration(1<<(n-1)) }
}

// analyzeWithRetries runs one analysis call and repeats it while the provider
// reports a transient failure, up to maxRetries extra calls. A malformed or
// rejected analysis is returned at once.
func analyzeWithRetries(ctx context.Context, provider string, maxRetries int, wait backoff, call func(context.Context) (*AnalysisResult, error)) (*AnalysisResult, error) {
	var lastErr error
	for n := 0; n <= maxRetries; n++ {
		if n > 0 {
			timer := time.NewTimer(wait(n))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("%s: query analysis abandoned after %d attempts: %w", provider, n, ctx.Err())
			case <-timer.C:
			}
		}

		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%s: query analysis failed after %d attempts: %w", provider, maxRetries+1, lastErr)
}

// newAnalysisClient returns the HTTP client shared by one provider's calls.
func newAnalysisClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultAnalysisTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends payload to endpoint and returns the body of a 200 response.
// Transport failures become transient APIErrors; any other status is decoded
// by apiError.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, header http.Header, payload any, apiError func(status int, body []byte) *APIError) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode analysis request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build analysis request: %w", provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: analysis request aborted: %w", provider, ctx.Err())
		}
		return nil, networkError(provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, raw)
	}
	return raw, nil
}
