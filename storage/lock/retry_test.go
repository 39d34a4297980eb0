package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStrategy contends for the first succeedOn-1 attempts and then
// succeeds; succeedOn == 0 means it never succeeds.
type countingStrategy struct {
	attempts  int
	succeedOn int
	err       error
}

func (s *countingStrategy) Acquire(ctx context.Context, key string, duration time.Duration) (Lease, error) {
	s.attempts++
	if s.err != nil {
		return Lease{}, s.err
	}
	if s.succeedOn != 0 && s.attempts >= s.succeedOn {
		return NewLease(key, "owner", duration, time.Now())
	}
	return Lease{}, ContentionError{Key: key}
}

func (s *countingStrategy) Renew(ctx context.Context, lease Lease) (Lease, error) {
	return lease, nil
}

func (s *countingStrategy) Release(ctx context.Context, lease Lease) error {
	return nil
}

func TestAcquireRetryFirstAttemptWins(t *testing.T) {
	s := &countingStrategy{succeedOn: 1}

	lease, err := AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 3, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "/doc", lease.Key)
	assert.Equal(t, 1, s.attempts)
}

func TestAcquireRetryEventualWin(t *testing.T) {
	s := &countingStrategy{succeedOn: 3}

	_, err := AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 5, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, s.attempts)
}

func TestAcquireRetryExhaustion(t *testing.T) {
	s := &countingStrategy{}

	_, err := AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 4, Delay: time.Millisecond})

	var timeout TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Attempts)
	// The attempted acquisitions equal the configured attempts, with the
	// initial attempt counting as attempt one.
	assert.Equal(t, 4, s.attempts)
}

func TestAcquireRetryPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("backend gone")
	s := &countingStrategy{err: boom}

	_, err := AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 3, Delay: time.Millisecond})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.attempts, "non-contention errors must not be retried")
}

func TestAcquireRetryHonorsContextCancellation(t *testing.T) {
	s := &countingStrategy{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := AcquireRetry(ctx, s, "/doc", time.Minute, RetryPolicy{Attempts: 100, Delay: time.Second})

	var timeout TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancelled context must abort the backoff early")
}

func TestAcquireRetryExhaustionCarriesNoContextError(t *testing.T) {
	s := &countingStrategy{}

	_, err := AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 2, Delay: time.Millisecond})

	var timeout TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.NoError(t, timeout.Err)
}

func TestAcquireRetryValidatesPolicy(t *testing.T) {
	s := &countingStrategy{succeedOn: 1}

	_, err := AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 0})
	require.Error(t, err)

	_, err = AcquireRetry(context.Background(), s, "/doc", time.Minute, RetryPolicy{Attempts: 1, Delay: -time.Second})
	require.Error(t, err)
}
