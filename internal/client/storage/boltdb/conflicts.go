package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/models"
)

// SaveConflict stores or updates a conflict
func (s *Storage) SaveConflict(ctx context.Context, c *models.Conflict) error {
	return s.putCompressed(bucketConflicts, 1, func(int) (string, any) {
		return c.ID, c
	})
}

// LoadConflicts returns all conflicts ordered by detection time
func (s *Storage) LoadConflicts(ctx context.Context) ([]*models.Conflict, error) {
	var conflicts []*models.Conflict

	err := s.forEachCompressed(bucketConflicts, func() any {
		c := &models.Conflict{}
		conflicts = append(conflicts, c)
		return c
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].DetectedAt.Before(conflicts[j].DetectedAt)
	})

	return conflicts, nil
}

// SaveDevice stores or updates a device record
func (s *Storage) SaveDevice(ctx context.Context, d *models.Device) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		return b.Put([]byte(d.ID), data)
	})
}

// LoadDevices returns all stored device records
func (s *Storage) LoadDevices(ctx context.Context) ([]*models.Device, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var devices []*models.Device

	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			d := &models.Device{}
			if err := json.Unmarshal(v, d); err != nil {
				return fmt.Errorf("failed to unmarshal device %s: %w", k, err)
			}
			devices = append(devices, d)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	return devices, nil
}
