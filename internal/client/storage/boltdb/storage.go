// Package boltdb implements the local entity store and the sync engine state on top of BoltDB.
package boltdb

import (
	"context"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketAuth      = []byte("auth")
	bucketEntities  = []byte("entities")
	bucketMetadata  = []byte("metadata")
	bucketOutbox    = []byte("outbox")
	bucketFailed    = []byte("failed")
	bucketConflicts = []byte("conflicts")
	bucketDevices   = []byte("devices")
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db          *bbolt.DB
	subscribers map[int]func(mutation)
	nextSub     int
	mu          sync.RWMutex // защищает subscribers
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{
		db:          db,
		subscribers: make(map[int]func(mutation)),
	}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketAuth,
			bucketEntities,
			bucketMetadata,
			bucketOutbox,
			bucketFailed,
			bucketConflicts,
			bucketDevices,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// bucket возвращает bucket верхнего уровня или ошибку, если его нет
func bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}
