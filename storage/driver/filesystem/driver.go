// Package filesystem provides a storagedriver.StorageDriver implementation
// backed by a local directory tree.
//
// Writes land in a temporary file which is renamed into place, so a blob is
// always observed whole. Conditional creates use O_EXCL, which makes the
// driver usable as a coordination medium for the file lock strategy.
package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/base"
)

// DriverName is the kind this driver is selected by in configuration.
const DriverName = "filesystem"

const defaultMaxFileMode = 0o644

// DriverParameters represents all configuration options available for the
// filesystem driver.
type DriverParameters struct {
	RootDirectory string
}

type driver struct {
	rootDirectory string
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// filesystem. All provided paths will be subpaths of the RootDirectory.
type Driver struct {
	baseEmbed
}

// FromParameters constructs a new Driver with the given parameters.
func FromParameters(params DriverParameters) (*Driver, error) {
	if params.RootDirectory == "" {
		return nil, fmt.Errorf("filesystem: no root directory provided")
	}
	return New(params.RootDirectory), nil
}

// New constructs a new Driver rooted at the given directory.
func New(rootDirectory string) *Driver {
	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				StorageDriver: &driver{rootDirectory: rootDirectory},
			},
		},
	}
}

// Implement the storagedriver.StorageDriver interface.

func (d *driver) Name() string {
	return DriverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *driver) GetContent(ctx context.Context, subPath string) ([]byte, error) {
	contents, err := os.ReadFile(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: DriverName}
		}
		return nil, storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	return contents, nil
}

// PutContent stores the []byte content at a location designated by "path".
// The write is staged in a temporary file in the destination directory and
// renamed into place so concurrent readers never observe a torn blob.
func (d *driver) PutContent(ctx context.Context, subPath string, contents []byte) error {
	fullPath := d.fullPath(subPath)
	parentDir := path.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}

	tmp, err := os.CreateTemp(parentDir, ".tmp-"+path.Base(fullPath)+"-")
	if err != nil {
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(contents)
	if err1 := tmp.Close(); err == nil {
		err = err1
	}
	if err == nil {
		err = os.Chmod(tmpName, defaultMaxFileMode)
	}
	if err == nil {
		err = os.Rename(tmpName, fullPath)
	}
	if err != nil {
		os.Remove(tmpName)
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	return nil
}

// PutContentIfAbsent stores content at "path" only if nothing exists there
// yet, relying on O_EXCL for the exclusive create.
func (d *driver) PutContentIfAbsent(ctx context.Context, subPath string, contents []byte) error {
	fullPath := d.fullPath(subPath)
	if err := os.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultMaxFileMode)
	if err != nil {
		if os.IsExist(err) {
			return storagedriver.AlreadyExistsError{Path: subPath, DriverName: DriverName}
		}
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}

	_, err = f.Write(contents)
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(fullPath)
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	return nil
}

// Stat retrieves the FileInfo for the given path.
func (d *driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(d.fullPath(subPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: DriverName}
		}
		return nil, storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	if fi.IsDir() {
		return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: DriverName}
	}

	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
		Path:    subPath,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}}, nil
}

// Delete removes the object stored at "path". Absent paths are a no-op.
func (d *driver) Delete(ctx context.Context, subPath string) error {
	err := os.Remove(d.fullPath(subPath))
	if err != nil && !os.IsNotExist(err) {
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	return nil
}

// List returns every object path under the given prefix in lexicographic
// order. Temporary staging files are never reported.
func (d *driver) List(ctx context.Context, prefix string) ([]string, error) {
	root := d.rootDirectory
	keys := []string{}

	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := "/" + filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefixPattern(prefix)) || key == prefix {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, storagedriver.Error{DriverName: DriverName, Detail: err}
	}

	sort.Strings(keys)
	return keys, nil
}

// fullPath returns the absolute path of a key within the Driver's storage.
func (d *driver) fullPath(subPath string) string {
	return path.Join(d.rootDirectory, subPath)
}

func prefixPattern(prefix string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}
