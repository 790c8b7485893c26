package scrape

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryableStatusCodes are the server errors retried by default.
var DefaultRetryableStatusCodes = []int{500, 502, 503, 504}

// RetryPolicy governs how many times a fetch is retried and how long to
// wait in between. It is immutable after construction and safe to share.
type RetryPolicy struct {
	maxRetries    int
	backoffFactor float64
	retryable     map[int]struct{}
}

// NewRetryPolicy validates and builds a RetryPolicy. A nil statusCodes uses
// DefaultRetryableStatusCodes.
func NewRetryPolicy(maxRetries int, backoffFactor float64, statusCodes []int) (*RetryPolicy, error) {
	if maxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", maxRetries)
	}
	if backoffFactor < 0 || math.IsNaN(backoffFactor) || math.IsInf(backoffFactor, 0) {
		return nil, fmt.Errorf("backoff factor must be a finite value >= 0, got %v", backoffFactor)
	}
	if statusCodes == nil {
		statusCodes = DefaultRetryableStatusCodes
	}
	retryable := make(map[int]struct{}, len(statusCodes))
	for _, code := range statusCodes {
		retryable[code] = struct{}{}
	}
	return &RetryPolicy{
		maxRetries:    maxRetries,
		backoffFactor: backoffFactor,
		retryable:     retryable,
	}, nil
}

// MaxRetries returns the number of retries allowed after the first attempt.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// IsRetryableStatus reports whether a response with code should be retried.
func (p *RetryPolicy) IsRetryableStatus(code int) bool {
	_, ok := p.retryable[code]
	return ok
}

// Backoff returns the wait before retry number attempt (1-based):
// backoffFactor * 2^(attempt-1) seconds.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.backoffFactor == 0 {
		return 0
	}
	seconds := p.backoffFactor * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// NewBackOff returns a fresh backoff schedule for one work item. It stops
// after MaxRetries retries or when ctx ends.
func (p *RetryPolicy) NewBackOff(ctx context.Context) backoff.BackOffContext {
	initial := p.Backoff(1)
	ceiling := p.Backoff(p.maxRetries)
	if ceiling < initial {
		ceiling = initial
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(ceiling),
		backoff.WithMaxElapsedTime(0),
	)
	// #nosec G115 -- maxRetries is validated to be non-negative.
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries)), ctx)
}
