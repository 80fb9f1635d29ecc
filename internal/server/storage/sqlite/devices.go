package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
)

// PutDevice creates or replaces the device record
func (s *Storage) PutDevice(ctx context.Context, userID string, device *models.Device) error {
	capabilities, err := json.Marshal(device.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (
			user_id, id, name, class, capabilities, priority, is_online, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = excluded.name,
			class = excluded.class,
			capabilities = excluded.capabilities,
			priority = excluded.priority,
			is_online = excluded.is_online,
			last_seen = excluded.last_seen
	`,
		userID,
		device.ID,
		device.Name,
		string(device.Class),
		string(capabilities),
		device.Priority,
		boolToInt(device.IsOnline),
		timeToMillis(device.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}

	return nil
}

// GetDevice returns one registered device
func (s *Storage) GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	device, err := scanDevice(s.db.QueryRowContext(ctx, `
		SELECT id, name, class, capabilities, priority, is_online, last_seen
		FROM devices
		WHERE user_id = ? AND id = ?
	`, userID, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListDevices returns all devices of the user
func (s *Storage) ListDevices(ctx context.Context, userID string) ([]*models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, class, capabilities, priority, is_online, last_seen
		FROM devices
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

// SetOnline обновляет статус устройства, о котором сообщает relay
func (s *Storage) SetOnline(ctx context.Context, userID, deviceID string, online bool, seen int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET is_online = ?, last_seen = MAX(last_seen, ?)
		WHERE user_id = ? AND id = ?
	`, boolToInt(online), seen, userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrDeviceNotFound
	}

	return nil
}

func scanDevice(row rowScanner) (*models.Device, error) {
	device := &models.Device{}
	var (
		class        string
		capabilities string
		online       int
		lastSeen     int64
	)

	err := row.Scan(
		&device.ID,
		&device.Name,
		&class,
		&capabilities,
		&device.Priority,
		&online,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	device.Class = models.DeviceClass(class)
	device.IsOnline = intToBool(online)
	device.LastSeen = millisToTime(lastSeen)
	if err := json.Unmarshal([]byte(capabilities), &device.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}

	return device, nil
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
