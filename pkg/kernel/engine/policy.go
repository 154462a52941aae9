package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rpaflow/rpaflow/pkg/kernel/script"
)

// retryPolicy re-runs a failing step. Only errors are retried; signals and
// cancellation are returned at once.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

func newRetryPolicy(r *script.Retry) retryPolicy {
	if r == nil {
		return retryPolicy{attempts: 1}
	}
	return retryPolicy{attempts: normalizedAttempts(r.Attempts), delay: time.Duration(r.Delay)}
}

func normalizedAttempts(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// do calls fn until it succeeds or attempts run out. onRetry is told about
// each failed attempt that will be retried.
func (p retryPolicy) do(ctx context.Context, in *Instance, fn func() (Signal, error), onRetry func(attempt int, err error)) (Signal, error) {
	var (
		sig Signal
		err error
	)
	for attempt := 1; attempt <= p.attempts; attempt++ {
		sig, err = fn()
		if err == nil {
			return sig, nil
		}
		if attempt == p.attempts || !shouldRetry(ctx, in, err) {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if p.delay > 0 {
			t := time.NewTimer(p.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return sig, err
			case <-t.C:
			}
		}
	}
	return sig, err
}

func shouldRetry(ctx context.Context, in *Instance, err error) bool {
	if ctx.Err() != nil || in.IsCancellationPending() {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
