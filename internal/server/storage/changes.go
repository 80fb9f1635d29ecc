package storage

import (
	"context"

	"github.com/iudanet/handsync/internal/models"
)

// SaveResult описывает результат приема изменения
type SaveResult struct {
	// Seq порядковый номер изменения в журнале пользователя
	Seq int64
	// Duplicate изменение с таким id уже было принято ранее
	Duplicate bool
	// Current изменение стало текущим состоянием сущности (правило newest)
	Current bool
}

// ChangeStorage defines the append-only change log and the per-entity state derived from it.
// All methods are scoped by user: devices of one user share one log.
type ChangeStorage interface {
	// SaveChange appends the change to the log. A change whose id is already in the log
	// is accepted again without effect. The entity state moves to the change only when
	// it is newer than the current one.
	SaveChange(ctx context.Context, userID string, rec *models.ChangeRecord) (SaveResult, error)

	// LatestChange returns the current change of the entity, deletes included.
	// Returns ErrEntityNotFound if nothing was accepted for the entity.
	LatestChange(ctx context.Context, userID, entityType, entityID string) (*models.ChangeRecord, error)

	// ChangesSince returns changes of one type accepted after the cursor, in receive order,
	// and the cursor to continue from. With no new changes the cursor is returned as is.
	ChangesSince(ctx context.Context, userID, entityType string, since int64) ([]*models.ChangeRecord, int64, error)

	// EntityChecksums returns entityID -> checksum of every entity whose current change
	// is not a delete.
	EntityChecksums(ctx context.Context, userID, entityType string) (map[string]string, error)
}

// DeviceStorage defines the per-user device directory
type DeviceStorage interface {
	// PutDevice creates or replaces the device record
	PutDevice(ctx context.Context, userID string, device *models.Device) error

	// GetDevice returns ErrDeviceNotFound if the device is not registered
	GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error)

	// ListDevices returns all devices of the user ordered by id
	ListDevices(ctx context.Context, userID string) ([]*models.Device, error)

	// SetOnline updates the online flag and lastSeen of a registered device
	SetOnline(ctx context.Context, userID, deviceID string, online bool, seen int64) error
}
