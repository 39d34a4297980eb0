// Package storage composes a storage driver with a lock strategy into the
// application-facing object store. Every entry point serializes against
// concurrent writers of the same key through a lease, acquired with the
// configured retry policy and released on every exit path. Operations on
// different keys proceed fully in parallel; the lease is the only
// serialization primitive, with no in-process mutex layered on top, since
// the target deployment is multiple independent processes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loquia/sessionstore/internal/dcontext"
	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/lock"
	"github.com/loquia/sessionstore/storage/lock/objectlock"
)

// TransformFunc is the caller-supplied body of a read-modify-write. It
// receives the current blob, or nil when no object exists at the key, and
// returns the full replacement content.
type TransformFunc func(current []byte) ([]byte, error)

// TransformError wraps a failure of the caller's transform function during
// ReadModifyWrite. The lease is still released and the underlying blob is
// left unchanged.
type TransformError struct {
	Key string
	Err error
}

func (err TransformError) Error() string {
	return fmt.Sprintf("storage: transform failed for %q: %s", err.Key, err.Err)
}

func (err TransformError) Unwrap() error {
	return err.Err
}

// ReservedKeyError is returned for application keys under the lock marker
// namespace. Objects written there would sit inside the lock side-channel
// and be invisible to List.
type ReservedKeyError struct {
	Key string
}

func (err ReservedKeyError) Error() string {
	return fmt.Sprintf("storage: key %q is inside the reserved lock namespace", err.Key)
}

// ObjectStore is the interface surrounding application code consumes.
type ObjectStore interface {
	// Read returns the blob at key, or a PathNotFoundError.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write fully replaces the blob at key.
	Write(ctx context.Context, key string, content []byte) error

	// ReadModifyWrite reads the current blob (nil when absent), applies
	// transform, and writes the result, all under one held lease.
	ReadModifyWrite(ctx context.Context, key string, transform TransformFunc) error

	// Delete removes the blob at key; absent keys are a no-op.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix in lexicographic order,
	// excluding lock markers.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Options configures the locking behavior of a Store.
type Options struct {
	// LeaseDuration is the lease length before passive expiry. It must
	// exceed the expected duration of any single operation under it.
	LeaseDuration time.Duration

	// Retry is the client-side contention policy applied on acquisition.
	Retry lock.RetryPolicy
}

// Validate rejects out-of-range options at construction time.
func (o Options) Validate() error {
	if o.LeaseDuration <= 0 {
		return fmt.Errorf("storage: lease duration must be positive, got %v", o.LeaseDuration)
	}
	return o.Retry.Validate()
}

// Store is the ObjectStore implementation binding one driver to one lock
// strategy. It is read-only after construction and safe for concurrent use.
type Store struct {
	driver  storagedriver.StorageDriver
	locker  lock.Strategy
	options Options
}

var _ ObjectStore = &Store{}

// NewStore composes a driver and a lock strategy into a Store.
func NewStore(driver storagedriver.StorageDriver, locker lock.Strategy, options Options) (*Store, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return &Store{driver: driver, locker: locker, options: options}, nil
}

// Read returns the blob at key. The lease serializes the read with any
// concurrent ReadModifyWrite on the same key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := s.withLease(ctx, key, func(ctx context.Context, path string) error {
		var err error
		content, err = s.driver.GetContent(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// Write fully replaces the blob at key. The per-backend atomic put does not
// need the lease for its own correctness, but taking it serializes the
// write with concurrent ReadModifyWrite callers on the same key.
func (s *Store) Write(ctx context.Context, key string, content []byte) error {
	return s.withLease(ctx, key, func(ctx context.Context, path string) error {
		return s.driver.PutContent(ctx, path, content)
	})
}

// ReadModifyWrite reads the current blob, applies transform, and writes the
// result under one held lease. An absent object is presented to transform
// as nil. A transform failure aborts without writing.
func (s *Store) ReadModifyWrite(ctx context.Context, key string, transform TransformFunc) error {
	return s.withLease(ctx, key, func(ctx context.Context, path string) error {
		current, err := s.driver.GetContent(ctx, path)
		if err != nil {
			var notFound storagedriver.PathNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
			current = nil
		}

		next, err := transform(current)
		if err != nil {
			return TransformError{Key: key, Err: err}
		}

		return s.driver.PutContent(ctx, path, next)
	})
}

// Delete removes the blob at key; deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.withLease(ctx, key, func(ctx context.Context, path string) error {
		return s.driver.Delete(ctx, path)
	})
}

// List returns the keys under prefix in lexicographic order. Lock markers
// live under their own namespace and are filtered out, so they are never
// mistaken for application data. List takes no lease.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	path := canonicalPath(prefix)
	if err := checkReserved(path); err != nil {
		return nil, err
	}

	paths, err := s.driver.List(ctx, path)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, objectlock.MarkerNamespace+"/") {
			continue
		}
		keys = append(keys, p)
	}
	return keys, nil
}

// withLease runs fn with the lease for key held, releasing it on every exit
// path. Release failures are logged rather than returned: by that point the
// operation's outcome is already decided, and an unreleased marker expires
// on its own.
func (s *Store) withLease(ctx context.Context, key string, fn func(ctx context.Context, path string) error) error {
	path := canonicalPath(key)
	if err := checkReserved(path); err != nil {
		return err
	}

	lease, err := lock.AcquireRetry(ctx, s.locker, path, s.options.LeaseDuration, s.options.Retry)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
			dcontext.GetLoggerWithField(ctx, "lock.key", path).
				WithError(err).Warn("failed to release lease, waiting for expiry")
		}
	}()

	return fn(ctx, path)
}

// checkReserved rejects paths at or under the lock marker namespace.
func checkReserved(path string) error {
	if path == objectlock.MarkerNamespace || strings.HasPrefix(path, objectlock.MarkerNamespace+"/") {
		return ReservedKeyError{Key: path}
	}
	return nil
}

// canonicalPath maps an application key like "users/1/profile" onto the
// slash-rooted driver path form.
func canonicalPath(key string) string {
	if strings.HasPrefix(key, "/") {
		return key
	}
	return "/" + key
}
