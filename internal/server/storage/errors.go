package storage

import "errors"

// Common storage errors
var (
	// ErrEntityNotFound indicates that no change was ever accepted for the entity
	ErrEntityNotFound = errors.New("entity not found")

	// ErrChangeConflict indicates that a change with the same id but different content
	// was already accepted
	ErrChangeConflict = errors.New("change id already used with different content")

	// ErrDeviceNotFound indicates that device is not registered for the user
	ErrDeviceNotFound = errors.New("device not found")
)
