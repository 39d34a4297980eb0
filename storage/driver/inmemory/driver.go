// Package inmemory provides a storagedriver.StorageDriver implementation
// backed by a local map. Intended solely for testing and for embedding a
// store without external dependencies.
package inmemory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/base"
)

// DriverName is the kind this driver is selected by in configuration.
const DriverName = "inmemory"

type entry struct {
	content []byte
	modTime time.Time
}

type driver struct {
	mutex   sync.RWMutex
	entries map[string]entry
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// map. All operations are guarded by a single RWMutex, which also gives the
// conditional create its atomicity.
type Driver struct {
	baseEmbed
}

// New constructs a new Driver.
func New() *Driver {
	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				StorageDriver: &driver{entries: make(map[string]entry)},
			},
		},
	}
}

// Implement the storagedriver.StorageDriver interface.

func (d *driver) Name() string {
	return DriverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	e, ok := d.entries[path]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: path, DriverName: DriverName}
	}

	contents := make([]byte, len(e.content))
	copy(contents, e.content)
	return contents, nil
}

// PutContent stores the []byte content at a location designated by "path".
func (d *driver) PutContent(ctx context.Context, path string, contents []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.put(path, contents)
	return nil
}

// PutContentIfAbsent stores content at "path" only if the path is empty.
func (d *driver) PutContentIfAbsent(ctx context.Context, path string, contents []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, ok := d.entries[path]; ok {
		return storagedriver.AlreadyExistsError{Path: path, DriverName: DriverName}
	}

	d.put(path, contents)
	return nil
}

// DeleteIfUnchanged removes the object at "path" only if its content still
// equals the given content.
func (d *driver) DeleteIfUnchanged(ctx context.Context, path string, contents []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	e, ok := d.entries[path]
	if !ok {
		return nil
	}
	if !bytes.Equal(e.content, contents) {
		return storagedriver.PreconditionFailedError{Path: path, DriverName: DriverName}
	}

	delete(d.entries, path)
	return nil
}

func (d *driver) put(path string, contents []byte) {
	stored := make([]byte, len(contents))
	copy(stored, contents)
	d.entries[path] = entry{content: stored, modTime: time.Now()}
}

// Stat retrieves the FileInfo for the given path.
func (d *driver) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	e, ok := d.entries[path]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: path, DriverName: DriverName}
	}

	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
		Path:    path,
		Size:    int64(len(e.content)),
		ModTime: e.modTime,
	}}, nil
}

// Delete removes the object stored at "path". Absent paths are a no-op.
func (d *driver) Delete(ctx context.Context, path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	delete(d.entries, path)
	return nil
}

// List returns every object path under the given prefix in lexicographic
// order.
func (d *driver) List(ctx context.Context, prefix string) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	pattern := prefix
	if !strings.HasSuffix(pattern, "/") {
		pattern += "/"
	}

	keys := []string{}
	for path := range d.entries {
		if strings.HasPrefix(path, pattern) || path == prefix {
			keys = append(keys, path)
		}
	}

	sort.Strings(keys)
	return keys, nil
}
