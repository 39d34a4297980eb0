// Package driver defines the interface a storage backend must implement for
// filesystem-like key/value object storage.
//
// Drivers store small opaque blobs at slash-delimited paths. The registry of
// blessed backends lives in the factory subpackage; shared validation and
// instrumentation lives in the base subpackage.
package driver

import (
	"context"
	"errors"
	"regexp"
)

// Version is a string representing the storage driver version, of the form
// Major.Minor. Consumers must accept drivers with equal major version and
// greater minor version.
type Version string

// CurrentVersion is the current storage driver Version.
const CurrentVersion Version = "0.1"

// StorageDriver defines methods that a storage backend must implement for a
// filesystem-like key/value object storage. All blobs are written and read
// whole; there is no streaming or partial-update surface.
type StorageDriver interface {
	// Name returns the human-readable "name" of the driver, useful in error
	// messages and logging. Implementations should return the kind they were
	// selected by in configuration, e.g. "filesystem" or "s3".
	Name() string

	// GetContent retrieves the content stored at "path" as a []byte.
	// Returns PathNotFoundError if no object exists at path.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores the []byte content at a location designated by
	// "path", fully replacing any previous content. Intermediate path
	// structure is created as needed. The replace must be atomic as
	// observed by concurrent readers: they see either the old content or
	// the new content, never a torn write.
	PutContent(ctx context.Context, path string, content []byte) error

	// Stat retrieves the FileInfo for the given path, including the
	// current size in bytes and the creation time.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Delete removes the object stored at "path". Deleting an absent path
	// is not an error.
	Delete(ctx context.Context, path string) error

	// List returns every object path with the given path prefix, in
	// lexicographic order. The result is fully materialized before
	// returning; backends with bounded page sizes paginate internally.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalPutter is implemented by drivers whose backing store exposes a
// create-if-absent precondition. It is the primitive the object lock
// strategy builds exclusive markers on.
type ConditionalPutter interface {
	// PutContentIfAbsent stores content at path only if no object
	// currently exists there, failing with AlreadyExistsError otherwise.
	// The existence check and the write are a single atomic step as
	// observed through the backing store.
	PutContentIfAbsent(ctx context.Context, path string, content []byte) error
}

// ConditionalDeleter is implemented by drivers whose backing store can
// delete an object preconditioned on its content being unchanged since the
// caller observed it. The object lock strategy uses it to clear an expired
// marker without racing a concurrent reclaim that already replaced it.
type ConditionalDeleter interface {
	// DeleteIfUnchanged removes the object at path only if its current
	// content equals the given content, failing with
	// PreconditionFailedError otherwise. An absent object is a no-op. The
	// comparison and the delete are a single atomic step as observed
	// through the backing store.
	DeleteIfUnchanged(ctx context.Context, path string, content []byte) error
}

// PathRegexp is the regular expression which each path must match. A path
// must be absolute, beginning with a slash, with each path component
// separated by a slash.
var PathRegexp = regexp.MustCompile(`^(/[A-Za-z0-9._-]+)+$`)

// Exists reports whether an object is present at path. A missing path is
// not an error; only transport failures are returned.
func Exists(ctx context.Context, d StorageDriver, path string) (bool, error) {
	_, err := d.Stat(ctx, path)
	if err != nil {
		var notFound PathNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
