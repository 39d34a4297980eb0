package lock

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lease is a time-bounded exclusive claim on a key. It is an immutable
// value; renewal produces a new Lease with a later AcquiredAt. A lease is
// expired once now >= AcquiredAt + Duration, at which point the holder's
// further writes under it are unsafe and any other client may treat the key
// as free.
type Lease struct {
	// Key is the target key the lease guards.
	Key string

	// Owner is the opaque token unique to the acquiring process/request.
	Owner string

	// Duration is the lease length before passive expiry.
	Duration time.Duration

	// AcquiredAt is the instant the lease was acquired or last renewed.
	AcquiredAt time.Time
}

// NewLease validates and constructs a Lease. Out-of-range durations are
// rejected here rather than at first use.
func NewLease(key, owner string, duration time.Duration, acquiredAt time.Time) (Lease, error) {
	if key == "" {
		return Lease{}, fmt.Errorf("lock: lease key must not be empty")
	}
	if owner == "" {
		return Lease{}, fmt.Errorf("lock: lease owner must not be empty")
	}
	if duration <= 0 {
		return Lease{}, fmt.Errorf("lock: lease duration must be positive, got %v", duration)
	}
	return Lease{Key: key, Owner: owner, Duration: duration, AcquiredAt: acquiredAt}, nil
}

// ExpiresAt returns the instant the lease passively expires.
func (l Lease) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.Duration)
}

// Expired reports whether the lease has passively expired as of now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt())
}

// Renewed returns a copy of the lease re-acquired at the given instant.
func (l Lease) Renewed(now time.Time) Lease {
	l.AcquiredAt = now
	return l
}

// marker is the wire form of a lease as stored in a lock marker file or
// object. Every reader of a marker derives expiry from these fields alone,
// without contacting the original owner.
type marker struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	DurationMS int64     `json:"duration_ms"`
}

// EncodeMarker serializes the lease for storage in its marker.
func EncodeMarker(l Lease) ([]byte, error) {
	return json.Marshal(marker{
		Owner:      l.Owner,
		AcquiredAt: l.AcquiredAt.UTC(),
		DurationMS: l.Duration.Milliseconds(),
	})
}

// DecodeMarker deserializes a marker into a Lease for the given key.
func DecodeMarker(key string, data []byte) (Lease, error) {
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Lease{}, fmt.Errorf("lock: malformed marker for %q: %w", key, err)
	}
	return NewLease(key, m.Owner, time.Duration(m.DurationMS)*time.Millisecond, m.AcquiredAt)
}
