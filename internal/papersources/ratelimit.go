// Package papersources provides clients for searching academic paper databases.
package papersources

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/helixir/paper-search-service/internal/domain"
)

// RateLimiter wraps a token bucket rate limiter for controlling request rates
// to external APIs. It is safe for concurrent use because the underlying
// rate.Limiter is goroutine-safe for all operations.
type RateLimiter struct {
	limiter *rate.Limiter
}

// RateLimitPreset is a sustained rate and burst suited to one source.
type RateLimitPreset struct {
	RatePerSecond float64
	Burst         int
}

// DefaultRateLimit returns the published request budget for a source.
//
//   - arXiv asks clients to stay at one request every three seconds.
//   - Semantic Scholar allows 1 req/s unauthenticated and 10 req/s with a key.
func DefaultRateLimit(source domain.SourceType, hasAPIKey bool) RateLimitPreset {
	switch source {
	case domain.SourceTypeArXiv:
		return RateLimitPreset{RatePerSecond: 1.0 / 3.0, Burst: 1}
	case domain.SourceTypeSemanticScholar:
		if hasAPIKey {
			return RateLimitPreset{RatePerSecond: 10, Burst: 10}
		}
		return RateLimitPreset{RatePerSecond: 1, Burst: 1}
	default:
		return RateLimitPreset{RatePerSecond: 10, Burst: 10}
	}
}

// NewRateLimiter creates a new rate limiter.
// ratePerSecond is the sustained rate of requests per second.
// burst is the maximum burst size (number of tokens that can be consumed at once).
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
// It returns an error if the context is canceled or the deadline is exceeded.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting.
// It consumes one token if allowed, and returns false if no tokens are available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the rate limit while preserving the current burst size.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}
