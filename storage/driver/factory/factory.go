// Package factory constructs storage drivers from configuration. The set
// of backends is closed: selection is a single exhaustive switch over the
// known kinds, checked at startup, rather than a runtime registration map.
package factory

import (
	"context"
	"fmt"

	"github.com/loquia/sessionstore/configuration"
	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/filesystem"
	"github.com/loquia/sessionstore/storage/driver/gcs"
	"github.com/loquia/sessionstore/storage/driver/inmemory"
	"github.com/loquia/sessionstore/storage/driver/s3"
)

// InvalidStorageDriverError records an attempt to construct a storage
// driver of an unknown kind.
type InvalidStorageDriverError struct {
	Name string
}

func (err InvalidStorageDriverError) Error() string {
	return fmt.Sprintf("unknown storage driver kind: %s", err.Name)
}

// Create builds the storage driver selected by the configuration. It fails
// fast on unknown kinds or missing per-kind parameters; it never returns a
// partially constructed driver.
func Create(ctx context.Context, config configuration.Storage) (storagedriver.StorageDriver, error) {
	switch config.Type {
	case configuration.DriverFilesystem:
		return filesystem.FromParameters(filesystem.DriverParameters{
			RootDirectory: config.BaseDir,
		})
	case configuration.DriverS3:
		return s3.FromParameters(s3.DriverParameters{
			AccessKey:      config.AccessKey,
			SecretKey:      config.SecretKey,
			SessionToken:   config.SessionToken,
			Bucket:         config.Bucket,
			Region:         config.Region,
			RegionEndpoint: config.RegionEndpoint,
			ForcePathStyle: config.RegionEndpoint != "",
			Secure:         !config.Insecure,
			RootDirectory:  config.Prefix,
		})
	case configuration.DriverGCS:
		return gcs.FromParameters(ctx, gcs.DriverParameters{
			Bucket:        config.Bucket,
			Keyfile:       config.Keyfile,
			RootDirectory: config.Prefix,
		})
	case configuration.DriverInMemory:
		return inmemory.New(), nil
	default:
		return nil, InvalidStorageDriverError{Name: config.Type}
	}
}
