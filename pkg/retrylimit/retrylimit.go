// Package retrylimit provides bounded retries with pluggable backoff and an
// adaptive rate limiter for pacing calls against a shared remote service.
//
// Example usage:
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.Config{
//	    MaxAttempts: 3,
//	    Backoff:     retrylimit.Linear(5 * time.Second),
//	    Limiter:     lim,
//	}, func(ctx context.Context, attempt int) error {
//	    return doSomeWork(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// =============================================================================
// Limiter
// =============================================================================

// AdaptiveLimiter manages a rate limit that adjusts automatically based
// on the outcome of requests. It increases on success and decreases on
// errors. Thread-safe.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time

	// RecoverAfter is how long after the last failure the rate may grow again.
	RecoverAfter time.Duration
}

// NewAdaptiveLimiter creates an AdaptiveLimiter with the given configuration.
//
// Parameters:
//   - initial: starting requests per second
//   - minLimit: minimum allowed rate
//   - maxLimit: maximum allowed rate
//   - stepUp: increment on success
//   - stepDown: multiplier applied on failure (e.g., 0.5 to halve)
func NewAdaptiveLimiter(initial, minLimit, maxLimit rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if initial < 1 {
		initial = 1
	}
	if minLimit < 1 {
		minLimit = 1
	}
	return &AdaptiveLimiter{
		limiter:      rate.NewLimiter(initial, max(1, int(initial))),
		minLimit:     minLimit,
		maxLimit:     maxLimit,
		stepUp:       stepUp,
		stepDown:     stepDown,
		RecoverAfter: 10 * time.Second,
	}
}

// Wait blocks until a token is available or the context is canceled.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success increases the rate after a successful request.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) >= a.RecoverAfter {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited reduces the rate after a failure.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.adjustLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// adjustLimit sets the limiter to a new rate, respecting min/max boundaries.
func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	if newLimit > a.maxLimit {
		newLimit = a.maxLimit
	} else if newLimit < a.minLimit {
		newLimit = a.minLimit
	}

	if newLimit != a.limiter.Limit() {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(max(1, int(newLimit)))
	}
}

// =============================================================================
// Errors
// =============================================================================

// ErrExhausted is matched (errors.Is) by the error Do returns when every
// attempt failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// FatalError wraps errors that should stop retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// ExhaustedError carries the last failure after all attempts were used.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// =============================================================================
// Backoff
// =============================================================================

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear waits attempt*base: 5s, 10s, 15s for a 5s base.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Constant waits base after every failure.
func Constant(base time.Duration) Backoff {
	return func(int) time.Duration {
		return base
	}
}

// =============================================================================
// Retry
// =============================================================================

// Config configures retry behavior.
type Config struct {
	MaxAttempts int     // Maximum number of attempts (< 1 is treated as 1)
	Backoff     Backoff // Wait after a failed attempt (nil = no wait)

	// Retryable reports whether err may be retried. nil retries everything
	// except FatalError.
	Retryable func(err error) bool

	// OnRetry is called after a retryable failure, before sleeping. It is not
	// called for the final attempt.
	OnRetry func(attempt int, err error, wait time.Duration)

	// Sleep waits d or until ctx is done. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Limiter paces attempts across callers sharing it. Optional.
	Limiter *AdaptiveLimiter
}

// Do runs fn until it succeeds, fails with a non-retryable error, the context
// ends, or MaxAttempts is reached.
//
// Stops retrying if:
//   - fn returns nil (success)
//   - fn returns FatalError or an error Retryable rejects (returned as is)
//   - context is cancelled or expires (ctx.Err() is returned)
//   - every attempt failed (an *ExhaustedError is returned)
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Wait for limiter permission before making the attempt
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			if cfg.Limiter != nil {
				cfg.Limiter.Success()
				if attempt > 1 {
					log.Debug().Int("attempt", attempt).Float64("limit_rps", cfg.Limiter.CurrentLimit()).
						Msg("Success after retries")
				}
			}
			return nil
		}
		last = err

		if isFatalError(err) || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			return err
		}

		if cfg.Limiter != nil {
			cfg.Limiter.RateLimited()
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		var wait time.Duration
		if cfg.Backoff != nil {
			wait = cfg.Backoff(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if err := cfg.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: last}
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isFatalError returns true if err is or wraps a FatalError.
func isFatalError(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
