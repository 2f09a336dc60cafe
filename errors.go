// Package main - errors.go
//
// Error taxonomy shared by all modules:
//   - ErrInvalidFrame: capture returned unusable data (treated as Unknown)
//   - ErrAmbiguousMatch: near-tied classification (treated as Unknown)
//   - DeviceError: adb transport failure (retried with backoff, fatal on exhaustion)
//   - PersistError: state store write failure (fatal - silent loss would
//     repeat completed expansions)
package main

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame indicates the captured frame is nil, truncated, or
// otherwise unusable for matching.
var ErrInvalidFrame = errors.New("invalid frame")

// ErrAmbiguousMatch indicates two screen tags scored within the ambiguity
// epsilon of each other.
var ErrAmbiguousMatch = errors.New("ambiguous match")

// ErrDeviceUnavailable is the sentinel wrapped by every DeviceError.
var ErrDeviceUnavailable = errors.New("device unavailable")

// DeviceError wraps an adb transport failure with the operation that failed.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device unavailable during %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return ErrDeviceUnavailable
}

// NewDeviceError creates a DeviceError for the given operation
func NewDeviceError(op string, err error) *DeviceError {
	return &DeviceError{Op: op, Err: err}
}

// IsDeviceUnavailable reports whether err is (or wraps) a device failure
func IsDeviceUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}

// PersistError wraps a failure to durably write the expansion store.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist state to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
