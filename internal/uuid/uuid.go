// Package uuid generates the opaque owner tokens that identify lock
// holders.
package uuid

import (
	"github.com/google/uuid"
)

// NewString returns a new V7 UUID string. V7 UUIDs are time-ordered, which
// keeps lock markers roughly sortable by acquisition time when inspected.
// Panics on error to maintain compatibility with google/uuid's NewString.
func NewString() string {
	return uuid.Must(uuid.NewV7()).String()
}
