// Package lock defines lease-based mutual exclusion over a coordination
// medium. A Strategy hands out time-bounded exclusive Leases on string
// keys; a lease self-expires, so a crashed holder never blocks other
// clients for longer than the lease duration.
//
// Strategy implementations live in the filelock, objectlock and redislock
// subpackages. The retry policy applied around Acquire is uniform across
// strategies and lives here.
package lock

import (
	"context"
	"fmt"
	"time"
)

// Strategy provides acquire/renew/release of a named lease with a bounded
// duration. At most one unexpired lease may exist for a given key at any
// instant, as observed through the strategy's backing medium.
//
// Acquire is not reentrant: acquiring a key the caller already holds
// without releasing first is undefined and must be avoided.
type Strategy interface {
	// Acquire attempts to create an exclusive marker for key. It succeeds
	// only if no unexpired marker currently exists for that key, failing
	// with ContentionError otherwise.
	Acquire(ctx context.Context, key string, duration time.Duration) (Lease, error)

	// Renew extends the lease's acquisition time if the lease is still
	// held by this owner and not expired. It fails with LeaseLostError if
	// the marker is gone, owned by someone else, or already expired; a
	// renewal racing the expiry boundary fails closed rather than
	// succeeding.
	Renew(ctx context.Context, lease Lease) (Lease, error)

	// Release removes the marker iff it is still owned by this lease's
	// owner token. Releasing a lease that is already gone or stolen is a
	// no-op, not an error.
	Release(ctx context.Context, lease Lease) error
}

// ContentionError is returned by Acquire when another unexpired lease
// already exists for the target key. It is transient and internal to the
// acquire retry loop; AcquireRetry never surfaces it.
type ContentionError struct {
	Key string
}

func (err ContentionError) Error() string {
	return fmt.Sprintf("lock: key %q is held by another owner", err.Key)
}

// LeaseLostError is returned by Renew when the lease was stolen after
// expiry or its marker is gone. The holder must abort any in-progress write
// rather than commit under a false assumption of exclusivity.
type LeaseLostError struct {
	Key   string
	Owner string
}

func (err LeaseLostError) Error() string {
	return fmt.Sprintf("lock: lease on %q lost by owner %s", err.Key, err.Owner)
}

// TimeoutError is returned once the acquisition retry budget against a
// held, non-expiring lease is exhausted, or when the caller's context ends
// the retry loop early. Callers should treat it as a definite but transient
// failure of this operation. Err carries the context error when the loop
// was aborted by cancellation or deadline, and is nil on plain exhaustion.
type TimeoutError struct {
	Key      string
	Attempts int
	Err      error
}

func (err TimeoutError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("lock: timed out acquiring %q after %d attempts: %s", err.Key, err.Attempts, err.Err)
	}
	return fmt.Sprintf("lock: timed out acquiring %q after %d attempts", err.Key, err.Attempts)
}

func (err TimeoutError) Unwrap() error {
	return err.Err
}
