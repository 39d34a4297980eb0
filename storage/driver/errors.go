package driver

import (
	"encoding/json"
	"fmt"
)

// PathNotFoundError is returned when operating on a nonexistent path.
type PathNotFoundError struct {
	Path       string
	DriverName string
}

func (err PathNotFoundError) Error() string {
	return fmt.Sprintf("%s: Path not found: %s", err.DriverName, err.Path)
}

// InvalidPathError is returned when the provided path is malformed.
type InvalidPathError struct {
	Path       string
	DriverName string
}

func (err InvalidPathError) Error() string {
	return fmt.Sprintf("%s: invalid path: %s", err.DriverName, err.Path)
}

// AlreadyExistsError is returned by PutContentIfAbsent when an object is
// already present at the target path.
type AlreadyExistsError struct {
	Path       string
	DriverName string
}

func (err AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: path already exists: %s", err.DriverName, err.Path)
}

// PreconditionFailedError is returned by DeleteIfUnchanged when the object
// at the target path no longer matches the content the caller observed.
type PreconditionFailedError struct {
	Path       string
	DriverName string
}

func (err PreconditionFailedError) Error() string {
	return fmt.Sprintf("%s: precondition failed for path: %s", err.DriverName, err.Path)
}

// ErrUnsupportedMethod is returned when an optional driver capability is not
// implemented by the selected backend.
type ErrUnsupportedMethod struct {
	DriverName string
}

func (err ErrUnsupportedMethod) Error() string {
	return fmt.Sprintf("%s: unsupported method", err.DriverName)
}

// Error is a catch-all error type which captures an error of a storage
// driver's backing transport, along with the driver's name. It signals that
// the backend was unavailable or misbehaving, as opposed to the expected
// not-found and already-exists conditions above.
type Error struct {
	DriverName string
	Detail     error
}

func (err Error) Error() string {
	return fmt.Sprintf("%s: %s", err.DriverName, err.Detail)
}

func (err Error) Unwrap() error {
	return err.Detail
}

func (err Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DriverName string `json:"driver"`
		Detail     string `json:"detail"`
	}{
		DriverName: err.DriverName,
		Detail:     err.Detail.Error(),
	})
}
