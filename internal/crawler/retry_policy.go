package crawler

import (
	"context"
	"errors"
	"time"
)

// LinearRetryPolicy waits base×attempt between attempts.
type LinearRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewLinearRetryPolicy builds a policy; maxAttempts below 1 is treated as 1.
func NewLinearRetryPolicy(maxAttempts int, baseDelay time.Duration) *LinearRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts is the total attempt budget.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff returns the wait duration after the given (1-based) attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay * time.Duration(attempt)
}
