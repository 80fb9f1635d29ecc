package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no device credentials exist
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrEntityNotFound indicates that the entity does not exist in the store
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityExists indicates that Create was called for an existing entity
	ErrEntityExists = errors.New("entity already exists")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrRemoteUnavailable indicates a transport level failure talking to the remote store.
	// Callers treat it as a network error and retry later.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrRejected indicates that the remote store refused a record as invalid.
	// Retrying the same record will not help.
	ErrRejected = errors.New("record rejected by remote store")

	// ErrUnauthorized indicates missing or expired device credentials
	ErrUnauthorized = errors.New("unauthorized")
)
