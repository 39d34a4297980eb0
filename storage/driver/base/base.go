// Package base provides a base implementation of the storage driver that can
// be used to implement common checks. The goal is to increase the amount of
// code sharing.
//
// The canonical approach to use this package is to embed in the exported
// driver struct such that calls are proxied through this implementation.
// First, declare the internal driver, as follows:
//
//	type driver struct { ... internal ...}
//
// The resulting type should implement StorageDriver such that it can be the
// target of a Base struct. The exported type can then be declared as follows:
//
//	type Driver struct {
//		Base
//	}
//
// Because Driver embeds Base, it effectively implements Base. If the driver
// needs to intercept a call, before going to base, Driver should implement
// that method. Effectively, Driver can intercept calls before coming in and
// driver implements the actual logic.
//
// To further shield the embed from other packages, it is recommended to
// employ a private embed struct:
//
//	type baseEmbed struct {
//		base.Base
//	}
//
// Then, declare driver to embed baseEmbed, rather than Base directly:
//
//	type Driver struct {
//		baseEmbed
//	}
//
// The type now implements StorageDriver, proxying through Base, without
// exporting an unnecessary field.
package base

import (
	"context"
	"time"

	"github.com/loquia/sessionstore/internal/dcontext"
	storagedriver "github.com/loquia/sessionstore/storage/driver"
)

// Base provides a wrapper around a storagedriver implementation that provides
// common path validation and duration debug logging.
type Base struct {
	storagedriver.StorageDriver
}

// durationDebugLog returns a deferrable function which when invoked produces
// debug logging output with the method name and duration.
func durationDebugLog(ctx context.Context, methodName string) (deferrable func()) {
	startedAt := time.Now()

	return func() {
		dcontext.GetLoggerWithField(ctx, "duration", time.Since(startedAt)).
			Debug("storage.driver." + methodName)
	}
}

// GetContent wraps GetContent of underlying storage driver.
func (base *Base) GetContent(ctx context.Context, path string) ([]byte, error) {
	if !storagedriver.PathRegexp.MatchString(path) {
		return nil, storagedriver.InvalidPathError{Path: path, DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "GetContent")()

	return base.StorageDriver.GetContent(ctx, path)
}

// PutContent wraps PutContent of underlying storage driver.
func (base *Base) PutContent(ctx context.Context, path string, content []byte) error {
	if !storagedriver.PathRegexp.MatchString(path) {
		return storagedriver.InvalidPathError{Path: path, DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "PutContent")()

	return base.StorageDriver.PutContent(ctx, path, content)
}

// PutContentIfAbsent wraps PutContentIfAbsent of the underlying storage
// driver when it implements the ConditionalPutter capability, and returns
// ErrUnsupportedMethod when it does not.
func (base *Base) PutContentIfAbsent(ctx context.Context, path string, content []byte) error {
	if !storagedriver.PathRegexp.MatchString(path) {
		return storagedriver.InvalidPathError{Path: path, DriverName: base.StorageDriver.Name()}
	}

	putter, ok := base.StorageDriver.(storagedriver.ConditionalPutter)
	if !ok {
		return storagedriver.ErrUnsupportedMethod{DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "PutContentIfAbsent")()

	return putter.PutContentIfAbsent(ctx, path, content)
}

// DeleteIfUnchanged wraps DeleteIfUnchanged of the underlying storage
// driver when it implements the ConditionalDeleter capability, and returns
// ErrUnsupportedMethod when it does not.
func (base *Base) DeleteIfUnchanged(ctx context.Context, path string, content []byte) error {
	if !storagedriver.PathRegexp.MatchString(path) {
		return storagedriver.InvalidPathError{Path: path, DriverName: base.StorageDriver.Name()}
	}

	deleter, ok := base.StorageDriver.(storagedriver.ConditionalDeleter)
	if !ok {
		return storagedriver.ErrUnsupportedMethod{DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "DeleteIfUnchanged")()

	return deleter.DeleteIfUnchanged(ctx, path, content)
}

// Stat wraps Stat of underlying storage driver.
func (base *Base) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	if !storagedriver.PathRegexp.MatchString(path) {
		return nil, storagedriver.InvalidPathError{Path: path, DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "Stat")()

	return base.StorageDriver.Stat(ctx, path)
}

// Delete wraps Delete of underlying storage driver.
func (base *Base) Delete(ctx context.Context, path string) error {
	if !storagedriver.PathRegexp.MatchString(path) {
		return storagedriver.InvalidPathError{Path: path, DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "Delete")()

	return base.StorageDriver.Delete(ctx, path)
}

// List wraps List of underlying storage driver.
func (base *Base) List(ctx context.Context, prefix string) ([]string, error) {
	if !storagedriver.PathRegexp.MatchString(prefix) && prefix != "/" {
		return nil, storagedriver.InvalidPathError{Path: prefix, DriverName: base.StorageDriver.Name()}
	}

	defer durationDebugLog(ctx, "List")()

	return base.StorageDriver.List(ctx, prefix)
}
