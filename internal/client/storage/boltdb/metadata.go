package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/handsync/internal/client/storage"
)

const (
	keyLastSyncTimestamp = "last_sync_timestamp"
	keyClock             = "clock"
	keyCursorPrefix      = "cursor:"
)

// SaveLastSyncTimestamp saves the time of the last successful sync
func (s *Storage) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	return s.putInt64(keyLastSyncTimestamp, timestamp)
}

// GetLastSyncTimestamp returns 0 if no sync has been performed yet
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (int64, error) {
	return s.getInt64(keyLastSyncTimestamp)
}

// SaveCursor saves the remote change-log cursor of one entity type
func (s *Storage) SaveCursor(ctx context.Context, entityType string, cursor int64) error {
	return s.putInt64(keyCursorPrefix+entityType, cursor)
}

// GetCursor returns 0 if the entity type was never synced
func (s *Storage) GetCursor(ctx context.Context, entityType string) (int64, error) {
	return s.getInt64(keyCursorPrefix + entityType)
}

// SaveClock saves the last issued change timestamp
func (s *Storage) SaveClock(ctx context.Context, last int64) error {
	return s.putInt64(keyClock, last)
}

// GetClock returns 0 if nothing was saved
func (s *Storage) GetClock(ctx context.Context) (int64, error) {
	return s.getInt64(keyClock)
}

func (s *Storage) putInt64(key string, value int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}

		// Конвертируем int64 в bytes
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(value))

		if err := b.Put([]byte(key), buf); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}

		return nil
	})
}

func (s *Storage) getInt64(key string) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var value int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}

		buf := b.Get([]byte(key))
		if buf == nil {
			// Значение еще не сохранялось
			return nil
		}
		if len(buf) != 8 {
			return fmt.Errorf("corrupted value for %s", key)
		}

		value = int64(binary.BigEndian.Uint64(buf))
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return value, nil
}
