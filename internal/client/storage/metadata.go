package storage

import (
	"context"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/pending"
)

// MetadataStorage defines interface for storing sync bookkeeping
type MetadataStorage interface {
	// SaveLastSyncTimestamp saves the time (unix ms) of the last successful sync
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error

	// GetLastSyncTimestamp returns 0 if no sync has been performed yet
	GetLastSyncTimestamp(ctx context.Context) (int64, error)

	// SaveCursor saves the remote change-log cursor of one entity type
	SaveCursor(ctx context.Context, entityType string, cursor int64) error

	// GetCursor returns 0 if the entity type was never synced
	GetCursor(ctx context.Context, entityType string) (int64, error)

	// SaveClock saves the last issued change timestamp
	SaveClock(ctx context.Context, last int64) error

	// GetClock returns 0 if nothing was saved
	GetClock(ctx context.Context) (int64, error)
}

// OutboxStorage persists the pending set and the error list
type OutboxStorage interface {
	SavePending(ctx context.Context, entries ...*pending.Entry) error
	DeletePending(ctx context.Context, ids ...string) error
	LoadPending(ctx context.Context) ([]*pending.Entry, error)

	SaveFailed(ctx context.Context, failed ...*pending.Failed) error
	DeleteFailed(ctx context.Context, ids ...string) error
	LoadFailed(ctx context.Context) ([]*pending.Failed, error)
}

// ConflictStorage persists open and resolved conflicts
type ConflictStorage interface {
	SaveConflict(ctx context.Context, c *models.Conflict) error
	LoadConflicts(ctx context.Context) ([]*models.Conflict, error)
}

// DeviceStorage persists the device registry
type DeviceStorage interface {
	SaveDevice(ctx context.Context, d *models.Device) error
	LoadDevices(ctx context.Context) ([]*models.Device, error)
}

// StateStore is everything the sync engine persists between sessions.
type StateStore interface {
	MetadataStorage
	OutboxStorage
	ConflictStorage
	DeviceStorage
}
