package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/filesystem"
	"github.com/loquia/sessionstore/storage/driver/inmemory"
	"github.com/loquia/sessionstore/storage/lock"
	"github.com/loquia/sessionstore/storage/lock/filelock"
	"github.com/loquia/sessionstore/storage/lock/objectlock"
)

func newMemoryStore(t *testing.T, options Options) *Store {
	d := inmemory.New()
	store, err := NewStore(d, objectlock.New(d), options)
	require.NoError(t, err)
	return store
}

func defaultOptions() Options {
	return Options{
		LeaseDuration: 5 * time.Second,
		Retry:         lock.RetryPolicy{Attempts: 20, Delay: 5 * time.Millisecond},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newMemoryStore(t, defaultOptions())
	ctx := context.Background()

	content := []byte("profile data")
	require.NoError(t, store.Write(ctx, "users/1/profile", content))

	got, err := store.Read(ctx, "users/1/profile")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Canonical and bare key forms address the same object.
	got, err = store.Read(ctx, "/users/1/profile")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStoreReadMissing(t *testing.T) {
	store := newMemoryStore(t, defaultOptions())

	_, err := store.Read(context.Background(), "absent")
	var notFound storagedriver.PathNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStoreDeleteIdempotent(t *testing.T) {
	store := newMemoryStore(t, defaultOptions())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "doc", []byte("x")))
	require.NoError(t, store.Delete(ctx, "doc"))

	_, err := store.Read(ctx, "doc")
	var notFound storagedriver.PathNotFoundError
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, store.Delete(ctx, "doc"))
}

func TestReadModifyWriteAbsentSentinel(t *testing.T) {
	store := newMemoryStore(t, defaultOptions())
	ctx := context.Background()

	var observed []byte = []byte("sentinel-not-cleared")
	err := store.ReadModifyWrite(ctx, "doc", func(current []byte) ([]byte, error) {
		observed = current
		return []byte("created"), nil
	})
	require.NoError(t, err)
	assert.Nil(t, observed, "absent object must be presented as nil")

	got, err := store.Read(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("created"), got)
}

func TestTransformErrorLeavesBlobAndLease(t *testing.T) {
	store := newMemoryStore(t, defaultOptions())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "doc", []byte("before")))

	boom := errors.New("bad transform")
	err := store.ReadModifyWrite(ctx, "doc", func(current []byte) ([]byte, error) {
		return nil, boom
	})

	var transformErr TransformError
	require.ErrorAs(t, err, &transformErr)
	require.ErrorIs(t, err, boom)

	got, err := store.Read(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), got, "failed transform must not write")

	// The lease was released on the failure path: the next operation on
	// the same key proceeds without contention delay.
	require.NoError(t, store.Write(ctx, "doc", []byte("after")))
}

func TestConcurrentIncrements(t *testing.T) {
	store := newMemoryStore(t, Options{
		LeaseDuration: 5 * time.Second,
		Retry:         lock.RetryPolicy{Attempts: 200, Delay: time.Millisecond},
	})
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.ReadModifyWrite(ctx, "counter", func(current []byte) ([]byte, error) {
				count := 0
				if current != nil {
					var err error
					count, err = strconv.Atoi(string(current))
					if err != nil {
						return nil, err
					}
				}
				return []byte(strconv.Itoa(count + 1)), nil
			})
			if err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Read(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(n), string(got), "every increment must be inside its own lease window")
}

// TestConcurrentAppendScenario runs the filesystem backend with the file
// lock strategy: two concurrent appenders on one initially absent key must
// both land, in either order, with no interleaving.
func TestConcurrentAppendScenario(t *testing.T) {
	d := filesystem.New(t.TempDir())
	store, err := NewStore(d, filelock.New(t.TempDir()), Options{
		LeaseDuration: time.Second,
		Retry:         lock.RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	ctx := context.Background()

	appender := func(suffix string) func() error {
		return func() error {
			return store.ReadModifyWrite(ctx, "doc", func(current []byte) ([]byte, error) {
				return append(current, suffix...), nil
			})
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, fn := range []func() error{appender("a"), appender("b")} {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			errs <- fn()
		}(fn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Read(ctx, "doc")
	require.NoError(t, err)
	assert.Contains(t, []string{"ab", "ba"}, string(got))
}

func TestListExcludesLockMarkers(t *testing.T) {
	d := inmemory.New()
	store, err := NewStore(d, objectlock.New(d), defaultOptions())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "users/1/profile", []byte("x")))
	require.NoError(t, store.Write(ctx, "users/2/profile", []byte("y")))

	// A marker left behind by a crashed holder must stay invisible too.
	require.NoError(t, d.PutContent(ctx, "/locks/users/1/profile.lock", []byte("{}")))

	keys, err := store.List(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/users/1/profile", "/users/2/profile"}, keys)
}

func TestReservedKeysRejected(t *testing.T) {
	d := inmemory.New()
	store, err := NewStore(d, objectlock.New(d), defaultOptions())
	require.NoError(t, err)
	ctx := context.Background()

	var reserved ReservedKeyError
	require.ErrorAs(t, store.Write(ctx, "locks/doc", []byte("v")), &reserved)
	_, err = store.Read(ctx, "/locks/doc")
	require.ErrorAs(t, err, &reserved)
	require.ErrorAs(t, store.Delete(ctx, "locks/doc"), &reserved)
	require.ErrorAs(t, store.ReadModifyWrite(ctx, "locks/doc", func(cur []byte) ([]byte, error) {
		return cur, nil
	}), &reserved)
	_, err = store.List(ctx, "locks")
	require.ErrorAs(t, err, &reserved)

	// Keys that merely share the prefix string are ordinary data.
	require.NoError(t, store.Write(ctx, "locksmith/doc", []byte("v")))
}

// heldStrategy reports contention forever, modeling a holder that never
// releases nor expires.
type heldStrategy struct{}

func (heldStrategy) Acquire(ctx context.Context, key string, duration time.Duration) (lock.Lease, error) {
	return lock.Lease{}, lock.ContentionError{Key: key}
}

func (heldStrategy) Renew(ctx context.Context, lease lock.Lease) (lock.Lease, error) {
	return lock.Lease{}, lock.LeaseLostError{Key: lease.Key, Owner: lease.Owner}
}

func (heldStrategy) Release(ctx context.Context, lease lock.Lease) error { return nil }

func TestLockTimeoutSurfaced(t *testing.T) {
	store, err := NewStore(inmemory.New(), heldStrategy{}, Options{
		LeaseDuration: time.Second,
		Retry:         lock.RetryPolicy{Attempts: 3, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	writeErr := store.Write(context.Background(), "doc", []byte("x"))
	var timeout lock.TimeoutError
	require.ErrorAs(t, writeErr, &timeout)
	assert.Equal(t, 3, timeout.Attempts)

	_, readErr := store.Read(context.Background(), "doc")
	require.ErrorAs(t, readErr, &timeout)
}

func TestNewStoreValidatesOptions(t *testing.T) {
	d := inmemory.New()

	_, err := NewStore(d, objectlock.New(d), Options{
		LeaseDuration: 0,
		Retry:         lock.RetryPolicy{Attempts: 1},
	})
	require.Error(t, err)

	_, err = NewStore(d, objectlock.New(d), Options{
		LeaseDuration: time.Second,
		Retry:         lock.RetryPolicy{Attempts: 0},
	})
	require.Error(t, err)
}

func TestOperationsOnDistinctKeysDoNotSerialize(t *testing.T) {
	store := newMemoryStore(t, Options{
		LeaseDuration: time.Minute,
		// A single attempt with no delay: any cross-key contention would
		// fail immediately rather than block.
		Retry: lock.RetryPolicy{Attempts: 1},
	})
	ctx := context.Background()

	const keys = 16
	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("sessions/%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Write(ctx, key, []byte(key)); err != nil {
				t.Errorf("write %s: %v", key, err)
			}
		}()
	}
	wg.Wait()
}
