// Package lockcheck holds the conformance suite every lock strategy must
// pass. Strategy packages call Run from their own tests with a constructor
// for a clean strategy over a fresh coordination medium.
//
// The suite uses short real leases and sleeps rather than a fake clock:
// expiry is derived from wall time by every strategy, and the properties
// under test are about what concurrent clients observe through the backing
// medium.
package lockcheck

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquia/sessionstore/storage/lock"
)

// StrategyConstructor returns a clean strategy instance for one subtest.
type StrategyConstructor func(t *testing.T) lock.Strategy

// Run exercises the lock.Strategy contract against the given constructor.
func Run(t *testing.T, newStrategy StrategyConstructor) {
	t.Run("AcquireReleaseReacquire", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		lease, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "/doc", lease.Key)
		assert.NotEmpty(t, lease.Owner)

		require.NoError(t, s.Release(ctx, lease))

		second, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err)
		assert.NotEqual(t, lease.Owner, second.Owner)
		require.NoError(t, s.Release(ctx, second))
	})

	t.Run("ContentionWhileHeld", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		lease, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err)
		defer s.Release(ctx, lease)

		_, err = s.Acquire(ctx, "/doc", time.Minute)
		var contention lock.ContentionError
		require.ErrorAs(t, err, &contention)
		assert.Equal(t, "/doc", contention.Key)
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		a, err := s.Acquire(ctx, "/key-a", time.Minute)
		require.NoError(t, err)
		b, err := s.Acquire(ctx, "/key-b", time.Minute)
		require.NoError(t, err)

		require.NoError(t, s.Release(ctx, a))
		require.NoError(t, s.Release(ctx, b))
	})

	t.Run("ExpiryRecovery", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		// Simulate a crashed holder: acquire and never release.
		_, err := s.Acquire(ctx, "/doc", 250*time.Millisecond)
		require.NoError(t, err)

		// Before expiry the key is still held.
		_, err = s.Acquire(ctx, "/doc", time.Minute)
		var contention lock.ContentionError
		require.ErrorAs(t, err, &contention)

		time.Sleep(300 * time.Millisecond)

		stolen, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err, "expired lease must be acquirable without release")
		require.NoError(t, s.Release(ctx, stolen))
	})

	t.Run("RenewExtends", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		lease, err := s.Acquire(ctx, "/doc", 500*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(300 * time.Millisecond)
		lease, err = s.Renew(ctx, lease)
		require.NoError(t, err)

		// Past the original expiry but within the renewed lease, the key
		// must still contend.
		time.Sleep(300 * time.Millisecond)
		_, err = s.Acquire(ctx, "/doc", time.Minute)
		var contention lock.ContentionError
		require.ErrorAs(t, err, &contention)

		require.NoError(t, s.Release(ctx, lease))
	})

	t.Run("RenewAfterExpiryFailsClosed", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		lease, err := s.Acquire(ctx, "/doc", 100*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(150 * time.Millisecond)

		_, err = s.Renew(ctx, lease)
		var lost lock.LeaseLostError
		require.ErrorAs(t, err, &lost)
	})

	t.Run("RenewAfterStealFails", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		first, err := s.Acquire(ctx, "/doc", 100*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(150 * time.Millisecond)

		thief, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err)
		defer s.Release(ctx, thief)

		_, err = s.Renew(ctx, first)
		var lost lock.LeaseLostError
		require.ErrorAs(t, err, &lost)
	})

	t.Run("ReleaseOfStolenLeaseIsNoop", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		first, err := s.Acquire(ctx, "/doc", 100*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(150 * time.Millisecond)

		thief, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err)

		// The crashed holder's late release must not free the thief's
		// lease.
		require.NoError(t, s.Release(ctx, first))
		_, err = s.Acquire(ctx, "/doc", time.Minute)
		var contention lock.ContentionError
		require.ErrorAs(t, err, &contention)

		require.NoError(t, s.Release(ctx, thief))
	})

	t.Run("ReleaseTwice", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		lease, err := s.Acquire(ctx, "/doc", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Release(ctx, lease))
		require.NoError(t, s.Release(ctx, lease))
	})

	t.Run("SingleWinnerUnderRace", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		const contenders = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Acquire(ctx, "/raced", time.Minute)
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
					return
				}
				var contention lock.ContentionError
				if !errors.As(err, &contention) {
					t.Errorf("unexpected acquire error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners, "exactly one contender may win the race")
	})

	t.Run("SingleWinnerReclaimingExpiredMarker", func(t *testing.T) {
		s := newStrategy(t)
		ctx := context.Background()

		// Leave an expired marker behind, as a crashed holder would.
		_, err := s.Acquire(ctx, "/raced", 50*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		const contenders = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Acquire(ctx, "/raced", time.Minute)
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
					return
				}
				var contention lock.ContentionError
				if !errors.As(err, &contention) {
					t.Errorf("unexpected acquire error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners, "exactly one contender may reclaim the expired marker")
	})
}
