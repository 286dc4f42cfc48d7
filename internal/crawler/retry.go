package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/pinharvest/internal/metrics"
)

// RetryingFetcher paces requests so that at least the configured delay
// separates the end of one attempt from the start of the next, and retries
// transport failures according to a RetryPolicy. Non-200 responses are
// returned as-is.
type RetryingFetcher struct {
	fetcher Fetcher
	policy  RetryPolicy
	limit   rate.Limit
	limiter *rate.Limiter
	pauser  pauseController
	clock   Clock
	logger  *zap.Logger
}

// NewRetryingFetcher wraps fetcher. A zero delay disables pacing.
func NewRetryingFetcher(fetcher Fetcher, policy RetryPolicy, delay time.Duration, clock Clock, logger *zap.Logger) *RetryingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = systemClock{}
	}
	if policy == nil {
		policy = NewLinearRetryPolicy(3, time.Second)
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	metrics.Init()
	return &RetryingFetcher{
		fetcher: fetcher,
		policy:  policy,
		limit:   limit,
		limiter: rate.NewLimiter(limit, 1),
		pauser:  &timerPauseController{},
		clock:   clock,
		logger:  logger,
	}
}

// Fetch fetches request on behalf of candidate id. Exhausted retries return
// a *FetchFailure; caller cancellation returns the context error.
func (f *RetryingFetcher) Fetch(ctx context.Context, id int, request FetchRequest) (FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return FetchResponse{}, ctxErr
			}
			return FetchResponse{}, fmt.Errorf("rate limiter: %w", err)
		}

		start := time.Now()
		resp, err := f.fetcher.Fetch(ctx, request)
		f.settle()
		if err == nil {
			result := "ok"
			if !resp.OK() {
				result = "not_found"
			}
			metrics.ObserveFetch(result, time.Since(start))
			return resp, nil
		}
		metrics.ObserveFetch("error", time.Since(start))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return FetchResponse{}, ctxErr
		}
		if !f.policy.ShouldRetry(err, attempt) {
			return FetchResponse{}, &FetchFailure{
				ID:       id,
				URL:      request.URL,
				Attempts: attempt,
				Err:      err,
				At:       f.clock.Now(),
			}
		}

		wait := f.policy.Backoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			zap.Int("pin_id", id),
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		f.pauser.Pause(ctx, wait)
	}
}

// settle restarts the pacing window when an attempt finishes, so a slow
// response still leaves a full delay before the next request.
func (f *RetryingFetcher) settle() {
	if f.limit == rate.Inf {
		return
	}
	f.limiter = rate.NewLimiter(f.limit, 1)
	f.limiter.Allow()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
