package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Retry calls fn up to maxTries times until it returns a nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func Retry[T any](maxTries int, fn func() (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	return RetryBackoff(ctx, Backoff{MaxAttempts: maxTries}, fn)
}

// RetryErrWithContext is RetryWithContext for functions without a result.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Backoff configures RetryBackoff. Zero delays retry immediately. A nil
// Retryable treats every error except context cancellation as retryable.
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       float64
	Retryable    func(error) bool
}

// DefaultBackoff is used for calls to external services: three attempts,
// 500ms doubling up to 5s.
var DefaultBackoff = Backoff{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Factor:       2,
	Jitter:       0.2,
}

// WithRetryable returns a copy of b that only retries errors accepted by fn.
func (b Backoff) WithRetryable(fn func(error) bool) Backoff {
	b.Retryable = fn
	return b
}

// Delay returns the wait before attempt n+1 (n starting at 1), without jitter.
func (b Backoff) Delay(n int) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < n; i++ {
		d *= factor
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && time.Duration(d) > b.MaxDelay {
		return b.MaxDelay
	}
	return time.Duration(d)
}

func (b Backoff) jittered(n int) time.Duration {
	d := b.Delay(n)
	if d <= 0 || b.Jitter <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryBackoff calls fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. Waits between attempts grow
// exponentially per b.
func RetryBackoff[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	var zero T
	for i := 1; i <= attempts; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if isContextErr(err) {
			return zero, err
		}
		lastErr = err
		if b.Retryable != nil && !b.Retryable(err) {
			return zero, err
		}
		if i == attempts {
			break
		}
		if wait := b.jittered(i); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, lastErr
}
