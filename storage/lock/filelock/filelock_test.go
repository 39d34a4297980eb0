package filelock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquia/sessionstore/storage/lock"
	"github.com/loquia/sessionstore/storage/lock/lockcheck"
)

func TestFileLockSuite(t *testing.T) {
	lockcheck.Run(t, func(t *testing.T) lock.Strategy {
		return New(t.TempDir())
	})
}

func TestMarkerLocation(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	ctx := context.Background()

	lease, err := s.Acquire(ctx, "/users/1/profile", time.Minute)
	require.NoError(t, err)

	markerPath := filepath.Join(root, "users", "1", "profile.lock")
	_, statErr := os.Stat(markerPath)
	assert.NoError(t, statErr, "marker file expected at %s", markerPath)

	require.NoError(t, s.Release(ctx, lease))
	_, statErr = os.Stat(markerPath)
	assert.True(t, os.IsNotExist(statErr), "marker must be removed on release")
}

func TestMalformedMarkerIsReclaimable(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.lock"), []byte("corrupt"), 0o644))

	lease, err := s.Acquire(ctx, "/doc", time.Minute)
	require.NoError(t, err, "a marker that cannot be decoded must be treated as stale")
	require.NoError(t, s.Release(ctx, lease))
}

// TestReclaimRefusesReplacedMarker replays the losing interleaving of a
// raced reclaim: contender A observes a stale marker, but before A removes
// it another contender completes a full reclaim and re-create. A's resumed
// reclaim must leave the fresh marker untouched and report contention.
func TestReclaimRefusesReplacedMarker(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	ctx := context.Background()

	stale, err := s.Acquire(ctx, "/doc", 30*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	// What contender A saw when it judged the marker reclaimable.
	observed, err := s.readMarker("/doc")
	require.NoError(t, err)
	require.Equal(t, stale.Owner, observed.Owner)

	// Contender B completes a full acquire before A resumes.
	fresh, err := s.Acquire(ctx, "/doc", time.Minute)
	require.NoError(t, err)

	aLease, err := lock.NewLease("/doc", "owner-a", time.Minute, time.Now())
	require.NoError(t, err)
	assert.False(t, s.reclaim(ctx, aLease, observed), "reclaim must refuse a marker that changed hands")

	// B's lease is still the one on disk.
	_, err = s.Renew(ctx, fresh)
	require.NoError(t, err)
}

// TestReleaseLeavesThiefMarker exercises release after a steal: the thief's
// fresh marker must survive the original holder's release.
func TestReleaseLeavesThiefMarker(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	ctx := context.Background()

	victim, err := s.Acquire(ctx, "/doc", 30*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	thief, err := s.Acquire(ctx, "/doc", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, victim))

	current, err := s.readMarker("/doc")
	require.NoError(t, err, "thief's marker must still be on disk")
	assert.Equal(t, thief.Owner, current.Owner)
}

func TestStateSurvivesStrategyRestart(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first := New(root)
	lease, err := first.Acquire(ctx, "/doc", time.Minute)
	require.NoError(t, err)

	// A second strategy instance over the same directory models a new
	// process observing the same on-disk markers.
	second := New(root)
	_, err = second.Acquire(ctx, "/doc", time.Minute)
	var contention lock.ContentionError
	require.ErrorAs(t, err, &contention)

	require.NoError(t, second.Release(ctx, lease))
}
