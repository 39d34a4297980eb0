// Package gcs provides a storagedriver.StorageDriver implementation to
// store blobs in Google Cloud Storage.
//
// This package leverages the cloud.google.com/go/storage client library for
// interfacing with gcs. GCS offers strong read-after-write and list
// consistency and supports generation-match preconditions, so the driver
// implements the conditional-create and conditional-delete capabilities
// used by the object lock strategy.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/base"
)

// DriverName is the kind this driver is selected by in configuration.
const DriverName = "gcs"

// DriverParameters encapsulates all of the driver parameters after all
// values have been set.
type DriverParameters struct {
	Bucket        string
	Keyfile       string
	RootDirectory string
}

type driver struct {
	client        *storage.Client
	bucket        string
	rootDirectory string
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.StorageDriver implementation backed by GCS.
// Objects are stored at absolute keys in the provided bucket under the
// configured root directory.
type Driver struct {
	baseEmbed
}

// FromParameters constructs a new Driver with the given parameters.
// Required parameters: Bucket. When Keyfile is empty, application default
// credentials are used.
func FromParameters(ctx context.Context, params DriverParameters) (*Driver, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("gcs: no bucket parameter provided")
	}

	var opts []option.ClientOption
	if params.Keyfile != "" {
		opts = append(opts, option.WithCredentialsFile(params.Keyfile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to create client: %w", err)
	}

	rootDirectory := strings.Trim(params.RootDirectory, "/")
	if rootDirectory != "" {
		rootDirectory += "/"
	}

	d := &driver{
		client:        client,
		bucket:        params.Bucket,
		rootDirectory: rootDirectory,
	}

	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				StorageDriver: d,
			},
		},
	}, nil
}

// Implement the storagedriver.StorageDriver interface.

func (d *driver) Name() string {
	return DriverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	rc, err := d.object(path).NewReader(ctx)
	if err != nil {
		return nil, parseError(path, err)
	}
	defer rc.Close()

	contents, err := io.ReadAll(rc)
	if err != nil {
		return nil, storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	return contents, nil
}

// PutContent stores the []byte content at a location designated by "path".
// A GCS object only becomes visible once the writer is closed, so the
// replace is atomic.
func (d *driver) PutContent(ctx context.Context, path string, contents []byte) error {
	wc := d.object(path).NewWriter(ctx)
	wc.ContentType = "application/octet-stream"
	if _, err := wc.Write(contents); err != nil {
		return parseError(path, err)
	}
	if err := wc.Close(); err != nil {
		return parseError(path, err)
	}
	return nil
}

// PutContentIfAbsent stores content at "path" with a DoesNotExist
// generation precondition, so exactly one of any number of concurrent
// creators succeeds.
func (d *driver) PutContentIfAbsent(ctx context.Context, path string, contents []byte) error {
	wc := d.object(path).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	wc.ContentType = "application/octet-stream"
	if _, err := wc.Write(contents); err != nil {
		return parseError(path, err)
	}
	if err := wc.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return storagedriver.AlreadyExistsError{Path: path, DriverName: DriverName}
		}
		return parseError(path, err)
	}
	return nil
}

// Stat retrieves the FileInfo for the given path.
func (d *driver) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	attrs, err := d.object(path).Attrs(ctx)
	if err != nil {
		return nil, parseError(path, err)
	}

	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
		Path:    path,
		Size:    attrs.Size,
		ModTime: attrs.Updated,
	}}, nil
}

// Delete removes the object stored at "path". Absent objects are a no-op.
func (d *driver) Delete(ctx context.Context, path string) error {
	err := d.object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return parseError(path, err)
	}
	return nil
}

// DeleteIfUnchanged removes the object at "path" only if its content has
// not changed since the caller observed it. The delete carries a
// generation-match precondition taken from the same read that does the
// comparison, so a replacement written in between fails the precondition
// instead of being lost.
func (d *driver) DeleteIfUnchanged(ctx context.Context, path string, contents []byte) error {
	rc, err := d.object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return parseError(path, err)
	}
	generation := rc.Attrs.Generation

	current, err := io.ReadAll(rc)
	if err1 := rc.Close(); err == nil {
		err = err1
	}
	if err != nil {
		return storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	if !bytes.Equal(current, contents) {
		return storagedriver.PreconditionFailedError{Path: path, DriverName: DriverName}
	}

	err = d.object(path).If(storage.Conditions{GenerationMatch: generation}).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return storagedriver.PreconditionFailedError{Path: path, DriverName: DriverName}
		}
		return parseError(path, err)
	}
	return nil
}

// List returns every object path under the given prefix in lexicographic
// order. The iterator paginates internally; the listing is fully
// materialized before returning.
func (d *driver) List(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := prefix
	if !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	it := d.client.Bucket(d.bucket).Objects(ctx, &storage.Query{
		Prefix: d.gcsKey(listPrefix),
	})

	keys := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, parseError(prefix, err)
		}
		keys = append(keys, d.keyToPath(attrs.Name))
	}

	sort.Strings(keys)
	return keys, nil
}

func (d *driver) object(path string) *storage.ObjectHandle {
	return d.client.Bucket(d.bucket).Object(d.gcsKey(path))
}

// gcsKey returns the gcs object name for the given storage driver path.
func (d *driver) gcsKey(path string) string {
	return d.rootDirectory + strings.TrimLeft(path, "/")
}

func (d *driver) keyToPath(key string) string {
	return "/" + strings.TrimPrefix(key, d.rootDirectory)
}

func parseError(path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return storagedriver.PathNotFoundError{Path: path, DriverName: DriverName}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return storagedriver.PathNotFoundError{Path: path, DriverName: DriverName}
	}
	return storagedriver.Error{DriverName: DriverName, Detail: err}
}
