// Package objectlock implements lock.Strategy with marker objects stored
// through a storage driver, under a side namespace that keeps markers out
// of application listings.
//
// When the driver exposes a conditional create (the gcs, filesystem and
// inmemory backends), exactly one of any number of raced acquirers wins,
// and an expired marker is cleared with a conditional delete (where the
// backend has one) so the clear acts on exactly the marker that was judged
// stale and never on a replacement written by a concurrent reclaimer.
// When the backend has neither precondition (classic s3), the strategy
// degrades to best-effort read-check-write and re-check-then-delete: in
// rare races two acquirers can both observe absence, or a replacement
// marker can be lost between the re-check and the delete. That guarantee
// is strictly weaker than the file and coordinator strategies; callers
// needing correctness under high contention should prefer the coordinator
// strategy on such backends.
package objectlock

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/loquia/sessionstore/internal/dcontext"
	"github.com/loquia/sessionstore/internal/uuid"
	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/lock"
)

// MarkerNamespace is the sub-namespace markers are stored under, distinct
// from any application data path.
const MarkerNamespace = "/locks"

// Strategy implements lock.Strategy over marker objects in a storage
// backend.
type Strategy struct {
	driver storagedriver.StorageDriver
}

var _ lock.Strategy = &Strategy{}

// New constructs a Strategy storing markers through the given driver.
func New(driver storagedriver.StorageDriver) *Strategy {
	return &Strategy{driver: driver}
}

// Acquire creates the marker object for key, reclaiming it first when the
// current marker is expired.
func (s *Strategy) Acquire(ctx context.Context, key string, duration time.Duration) (lock.Lease, error) {
	lease, err := lock.NewLease(key, uuid.NewString(), duration, time.Now())
	if err != nil {
		return lock.Lease{}, err
	}

	data, err := lock.EncodeMarker(lease)
	if err != nil {
		return lock.Lease{}, err
	}

	markerPath := s.markerPath(key)
	err = s.putIfAbsent(ctx, markerPath, data)
	if err == nil {
		return lease, nil
	}

	var exists storagedriver.AlreadyExistsError
	if !errors.As(err, &exists) {
		return lock.Lease{}, err
	}

	current, observed, err := s.readMarker(ctx, key)
	if err != nil {
		return lock.Lease{}, err
	}
	if observed != nil && current.Owner != "" && !current.Expired(time.Now()) {
		return lock.Lease{}, lock.ContentionError{Key: key}
	}

	// Marker is stale (or vanished between calls): clear exactly the
	// marker observed above, then take one more shot at the exclusive
	// create. Losing either race is contention.
	if observed != nil {
		if err := s.deleteMarker(ctx, markerPath, observed); err != nil {
			var precondition storagedriver.PreconditionFailedError
			if errors.As(err, &precondition) {
				return lock.Lease{}, lock.ContentionError{Key: key}
			}
			return lock.Lease{}, err
		}
	}
	if err := s.putIfAbsent(ctx, markerPath, data); err != nil {
		if errors.As(err, &exists) {
			return lock.Lease{}, lock.ContentionError{Key: key}
		}
		return lock.Lease{}, err
	}
	return lease, nil
}

// Renew rewrites the marker with a fresh acquisition time, failing closed
// at the expiry boundary.
func (s *Strategy) Renew(ctx context.Context, lease lock.Lease) (lock.Lease, error) {
	current, observed, err := s.readMarker(ctx, lease.Key)
	if err != nil {
		return lock.Lease{}, err
	}
	if observed == nil || current.Owner != lease.Owner || lease.Expired(time.Now()) {
		return lock.Lease{}, lock.LeaseLostError{Key: lease.Key, Owner: lease.Owner}
	}

	renewed := lease.Renewed(time.Now())
	data, err := lock.EncodeMarker(renewed)
	if err != nil {
		return lock.Lease{}, err
	}
	if err := s.driver.PutContent(ctx, s.markerPath(lease.Key), data); err != nil {
		return lock.Lease{}, err
	}
	return renewed, nil
}

// Release removes the marker iff this owner still holds it. The delete is
// conditioned on the marker content observed by the ownership check, so a
// marker stolen in between is left in place rather than destroyed.
func (s *Strategy) Release(ctx context.Context, lease lock.Lease) error {
	current, observed, err := s.readMarker(ctx, lease.Key)
	if err != nil {
		return err
	}
	if observed == nil || current.Owner != lease.Owner {
		return nil
	}

	err = s.deleteMarker(ctx, s.markerPath(lease.Key), observed)
	var precondition storagedriver.PreconditionFailedError
	if errors.As(err, &precondition) {
		return nil
	}
	return err
}

// putIfAbsent prefers the driver's conditional create and falls back to the
// best-effort emulation when the backend has no such precondition.
func (s *Strategy) putIfAbsent(ctx context.Context, markerPath string, data []byte) error {
	if putter, ok := s.driver.(storagedriver.ConditionalPutter); ok {
		err := putter.PutContentIfAbsent(ctx, markerPath, data)
		var unsupported storagedriver.ErrUnsupportedMethod
		if !errors.As(err, &unsupported) {
			return err
		}
	}

	dcontext.GetLoggerWithField(ctx, "lock.marker", markerPath).
		Debug("backend has no conditional create, using best-effort acquire")

	exists, err := storagedriver.Exists(ctx, s.driver, markerPath)
	if err != nil {
		return err
	}
	if exists {
		return storagedriver.AlreadyExistsError{Path: markerPath, DriverName: s.driver.Name()}
	}
	return s.driver.PutContent(ctx, markerPath, data)
}

// deleteMarker clears the marker whose content the caller observed. It
// prefers the driver's conditional delete; a backend without one gets a
// re-read-and-compare immediately before the unconditional delete, which
// still leaves the window between the compare and the delete open.
func (s *Strategy) deleteMarker(ctx context.Context, markerPath string, observed []byte) error {
	if deleter, ok := s.driver.(storagedriver.ConditionalDeleter); ok {
		err := deleter.DeleteIfUnchanged(ctx, markerPath, observed)
		var unsupported storagedriver.ErrUnsupportedMethod
		if !errors.As(err, &unsupported) {
			return err
		}
	}

	dcontext.GetLoggerWithField(ctx, "lock.marker", markerPath).
		Debug("backend has no conditional delete, re-checking before delete")

	data, err := s.driver.GetContent(ctx, markerPath)
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	if !bytes.Equal(data, observed) {
		return storagedriver.PreconditionFailedError{Path: markerPath, DriverName: s.driver.Name()}
	}
	return s.driver.Delete(ctx, markerPath)
}

// readMarker returns the decoded lease and the raw marker bytes, with nil
// bytes when no marker exists.
func (s *Strategy) readMarker(ctx context.Context, key string) (lock.Lease, []byte, error) {
	data, err := s.driver.GetContent(ctx, s.markerPath(key))
	if err != nil {
		var notFound storagedriver.PathNotFoundError
		if errors.As(err, &notFound) {
			return lock.Lease{}, nil, nil
		}
		return lock.Lease{}, nil, err
	}

	lease, err := lock.DecodeMarker(key, data)
	if err != nil {
		// Malformed markers are treated as expired claims so they can be
		// reclaimed rather than wedging the key forever.
		return lock.Lease{}, data, nil
	}
	return lease, data, nil
}

func (s *Strategy) markerPath(key string) string {
	return MarkerNamespace + key + ".lock"
}
