package storage

import (
	"context"

	"github.com/iudanet/handsync/internal/models"
)

//go:generate moq -out remotestore_mock.go . RemoteStore DeviceDirectory

// RemoteStore is the network-backed store every device reconciles with.
// Writes carry the full change record, so the remote keeps the change log that
// other devices pull with ChangesSince.
type RemoteStore interface {
	// Create stores a create record. Storing an already stored record is a no-op.
	Create(ctx context.Context, rec *models.ChangeRecord) error

	// Update stores an update record.
	Update(ctx context.Context, rec *models.ChangeRecord) error

	// Delete stores a delete record. Deleting a missing entity is not an error.
	Delete(ctx context.Context, rec *models.ChangeRecord) error

	// Read returns the latest record of an entity.
	// Returns ErrEntityNotFound if the remote store never saw it.
	Read(ctx context.Context, entityType, entityID string) (*models.ChangeRecord, error)

	// ChangesSince returns records of entityType received after cursor since, in
	// receive order, together with the cursor to pass next time. Cursor 0 means
	// from the beginning.
	ChangesSince(ctx context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error)

	// Checksum returns the collection digest of entityType
	// (see integrity.CollectionDigest over the latest record checksum per entity).
	Checksum(ctx context.Context, entityType string) (string, error)
}

// DeviceDirectory is an optional RemoteStore capability: a shared list of the
// user's devices, so device priorities are known without a realtime connection.
type DeviceDirectory interface {
	// PutDevice upserts a device record
	PutDevice(ctx context.Context, d *models.Device) error

	// ListDevices returns all known devices of the user
	ListDevices(ctx context.Context) ([]*models.Device, error)
}
