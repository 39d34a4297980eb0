// Package filelock implements lock.Strategy with advisory lock files under
// a root directory.
//
// The marker for a key is a JSON file created with an exclusive-create
// primitive (O_EXCL), so raced creates resolve in the filesystem. A stale
// marker (past its declared expiry) is reclaimed by renaming it to an
// owner-suffixed tombstone first; rename fails for every reclaimer but one,
// which avoids the check-then-act race of a separate exists-check-then-write.
// The winner then re-reads the tombstone and keeps it only if it still holds
// the exact stale lease it judged reclaimable; a marker that changed hands
// in between is renamed back untouched and reported as contention, so a
// reclaim can never destroy another contender's fresh lease.
//
// The in-process strategy keeps no state between calls: everything is
// re-derived from the on-disk markers, so leases survive process restarts
// exactly as far as the marker files do.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loquia/sessionstore/internal/dcontext"
	"github.com/loquia/sessionstore/internal/uuid"
	"github.com/loquia/sessionstore/storage/lock"
)

// Strategy implements lock.Strategy over a local directory of marker files.
type Strategy struct {
	rootDirectory string
}

var _ lock.Strategy = &Strategy{}

// New constructs a Strategy storing marker files under rootDirectory.
func New(rootDirectory string) *Strategy {
	return &Strategy{rootDirectory: rootDirectory}
}

// Acquire creates the marker file for key, reclaiming it first when the
// current marker is expired.
func (s *Strategy) Acquire(ctx context.Context, key string, duration time.Duration) (lock.Lease, error) {
	lease, err := lock.NewLease(key, uuid.NewString(), duration, time.Now())
	if err != nil {
		return lock.Lease{}, err
	}

	created, err := s.tryCreate(lease)
	if err != nil {
		return lock.Lease{}, err
	}
	if created {
		return lease, nil
	}

	// Marker exists; see whether it is stale enough to reclaim.
	current, err := s.readMarker(key)
	if err != nil {
		if os.IsNotExist(err) {
			// Holder released between our create and read; contend again.
			return lock.Lease{}, lock.ContentionError{Key: key}
		}
		return lock.Lease{}, err
	}

	if current.Owner != "" && !current.Expired(time.Now()) {
		return lock.Lease{}, lock.ContentionError{Key: key}
	}

	if !s.reclaim(ctx, lease, current) {
		return lock.Lease{}, lock.ContentionError{Key: key}
	}

	created, err = s.tryCreate(lease)
	if err != nil {
		return lock.Lease{}, err
	}
	if !created {
		// A third party won the re-create after our reclaim.
		return lock.Lease{}, lock.ContentionError{Key: key}
	}
	return lease, nil
}

// Renew rewrites the marker with a fresh acquisition time. It fails closed:
// a lease at or past its expiry boundary is reported lost even if no thief
// has claimed the key yet.
func (s *Strategy) Renew(ctx context.Context, lease lock.Lease) (lock.Lease, error) {
	current, err := s.readMarker(lease.Key)
	if err != nil {
		if os.IsNotExist(err) {
			return lock.Lease{}, lock.LeaseLostError{Key: lease.Key, Owner: lease.Owner}
		}
		return lock.Lease{}, err
	}

	if current.Owner != lease.Owner || lease.Expired(time.Now()) {
		return lock.Lease{}, lock.LeaseLostError{Key: lease.Key, Owner: lease.Owner}
	}

	renewed := lease.Renewed(time.Now())
	if err := s.writeMarker(renewed); err != nil {
		return lock.Lease{}, err
	}
	return renewed, nil
}

// Release removes the marker iff this owner still holds it. The marker is
// captured by rename before the ownership check, so a marker stolen after
// expiry is never the one removed; a captured thief's marker is renamed
// back untouched.
func (s *Strategy) Release(ctx context.Context, lease lock.Lease) error {
	markerPath := s.markerPath(lease.Key)
	tombstone := markerPath + ".release-" + lease.Owner

	if err := os.Rename(markerPath, tombstone); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("filelock: capturing marker for %q: %w", lease.Key, err)
	}

	captured, err := s.readMarkerFile(lease.Key, tombstone)
	if err != nil || captured.Owner != lease.Owner {
		s.restore(ctx, lease.Key, tombstone, markerPath)
		return nil
	}

	if err := os.Remove(tombstone); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filelock: removing marker for %q: %w", lease.Key, err)
	}
	return nil
}

// tryCreate attempts the exclusive create of the marker file, reporting
// false when a marker already exists.
func (s *Strategy) tryCreate(lease lock.Lease) (bool, error) {
	markerPath := s.markerPath(lease.Key)
	if err := os.MkdirAll(filepath.Dir(markerPath), 0o755); err != nil {
		return false, fmt.Errorf("filelock: creating marker directory: %w", err)
	}

	data, err := lock.EncodeMarker(lease)
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(markerPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("filelock: creating marker for %q: %w", lease.Key, err)
	}

	_, err = f.Write(data)
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(markerPath)
		return false, fmt.Errorf("filelock: writing marker for %q: %w", lease.Key, err)
	}
	return true, nil
}

// reclaim renames the marker to an owner-suffixed tombstone and verifies
// that what it captured is still the stale lease the caller observed. Only
// one of any number of raced reclaimers wins the rename; the rest observe
// the source gone and go back to contending. A capture that turns out to be
// some other contender's replacement marker is renamed back and the reclaim
// reported lost, so the staleness check and the removal act on the same
// marker rather than racing a concurrent reclaim-and-reacquire.
func (s *Strategy) reclaim(ctx context.Context, lease lock.Lease, observed lock.Lease) bool {
	markerPath := s.markerPath(lease.Key)
	tombstone := markerPath + ".reclaim-" + lease.Owner

	if err := os.Rename(markerPath, tombstone); err != nil {
		return false
	}

	captured, err := s.readMarkerFile(lease.Key, tombstone)
	if err != nil || captured.Owner != observed.Owner || !captured.AcquiredAt.Equal(observed.AcquiredAt) {
		s.restore(ctx, lease.Key, tombstone, markerPath)
		return false
	}

	if err := os.Remove(tombstone); err != nil && !os.IsNotExist(err) {
		dcontext.GetLoggerWithField(ctx, "lock.key", lease.Key).
			WithError(err).Warn("filelock: leaked reclaim tombstone")
	}
	return true
}

// restore puts a captured marker back in place. The rename overwrites any
// marker created while the capture was held; that window is the two renames
// and nothing else.
func (s *Strategy) restore(ctx context.Context, key, tombstone, markerPath string) {
	if err := os.Rename(tombstone, markerPath); err != nil {
		dcontext.GetLoggerWithField(ctx, "lock.key", key).
			WithError(err).Warn("filelock: failed to restore captured marker")
	}
}

// writeMarker atomically replaces the marker file via a temp file rename.
func (s *Strategy) writeMarker(lease lock.Lease) error {
	markerPath := s.markerPath(lease.Key)
	data, err := lock.EncodeMarker(lease)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(markerPath), ".tmp-marker-")
	if err != nil {
		return fmt.Errorf("filelock: staging marker for %q: %w", lease.Key, err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err1 := tmp.Close(); err == nil {
		err = err1
	}
	if err == nil {
		err = os.Rename(tmpName, markerPath)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filelock: replacing marker for %q: %w", lease.Key, err)
	}
	return nil
}

func (s *Strategy) readMarker(key string) (lock.Lease, error) {
	return s.readMarkerFile(key, s.markerPath(key))
}

func (s *Strategy) readMarkerFile(key, path string) (lock.Lease, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lock.Lease{}, err
	}

	lease, err := lock.DecodeMarker(key, data)
	if err != nil {
		// A malformed marker cannot be trusted to expire; treat it as an
		// expired claim so it is reclaimable.
		return lock.Lease{}, nil
	}
	return lease, nil
}

func (s *Strategy) markerPath(key string) string {
	return filepath.Join(s.rootDirectory, filepath.FromSlash(key)+".lock")
}
