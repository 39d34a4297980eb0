package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loquia/sessionstore/internal/dcontext"
)

// RetryPolicy governs client-side contention handling around Acquire. It
// does not change lease semantics.
//
// Attempts is the total number of acquisitions tried, so the initial
// attempt counts as attempt 1. Backoff is linear: before attempt n+1 the
// caller sleeps Delay * n.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Validate rejects out-of-range retry parameters.
func (p RetryPolicy) Validate() error {
	if p.Attempts < 1 {
		return fmt.Errorf("lock: retry attempts must be at least 1, got %d", p.Attempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("lock: retry delay must not be negative, got %v", p.Delay)
	}
	return nil
}

// AcquireRetry attempts to acquire a lease under the given policy. Each
// ContentionError is swallowed and retried after the linear backoff; once
// the budget is exhausted a TimeoutError is returned. A context cancelled
// or past its deadline aborts the loop early with a TimeoutError wrapping
// the context error. Non-contention errors are returned unchanged.
func AcquireRetry(ctx context.Context, s Strategy, key string, duration time.Duration, policy RetryPolicy) (Lease, error) {
	if err := policy.Validate(); err != nil {
		return Lease{}, err
	}

	for attempt := 1; ; attempt++ {
		lease, err := s.Acquire(ctx, key, duration)
		if err == nil {
			return lease, nil
		}

		var contention ContentionError
		if !errors.As(err, &contention) {
			return Lease{}, err
		}

		if attempt >= policy.Attempts {
			return Lease{}, TimeoutError{Key: key, Attempts: attempt}
		}

		dcontext.GetLoggerWithFields(ctx, map[string]any{
			"lock.key":     key,
			"lock.attempt": attempt,
		}).Debug("lock contended, backing off")

		backoff := policy.Delay * time.Duration(attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Lease{}, TimeoutError{Key: key, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}
