package driver

import "time"

// FileInfo returns information about a given path. Inspired by os.FileInfo,
// it is a richer message to avoid unnecessary calls to Stat.
type FileInfo interface {
	// Path provides the full path of the target of this file info.
	Path() string

	// Size returns current length in bytes of the file.
	Size() int64

	// ModTime returns the modification time for the file.
	ModTime() time.Time
}

// FileInfoFields provides the exported fields for implementing FileInfo
// using FileInfoInternal. If individual fields need to be intercepted,
// implement FileInfo directly.
type FileInfoFields struct {
	// Path provides the full path of the target of this file info.
	Path string

	// Size is current length in bytes of the file.
	Size int64

	// ModTime is the modification time for the file.
	ModTime time.Time
}

// FileInfoInternal implements the FileInfo interface. This should only be
// used by storagedriver implementations. They should use this type or create
// their own implementation.
type FileInfoInternal struct {
	FileInfoFields
}

var _ FileInfo = FileInfoInternal{}

// Path provides the full path of the target of this file info.
func (fi FileInfoInternal) Path() string {
	return fi.FileInfoFields.Path
}

// Size returns current length in bytes of the file.
func (fi FileInfoInternal) Size() int64 {
	return fi.FileInfoFields.Size
}

// ModTime returns the modification time for the file.
func (fi FileInfoInternal) ModTime() time.Time {
	return fi.FileInfoFields.ModTime
}
