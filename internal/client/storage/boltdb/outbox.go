package boltdb

import (
	"context"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/pending"
)

// SavePending persists pending entries keyed by change id
func (s *Storage) SavePending(ctx context.Context, entries ...*pending.Entry) error {
	return s.putCompressed(bucketOutbox, len(entries), func(i int) (string, any) {
		return entries[i].Record.ID, entries[i]
	})
}

// DeletePending removes acknowledged entries
func (s *Storage) DeletePending(ctx context.Context, ids ...string) error {
	return s.deleteKeys(bucketOutbox, ids)
}

// LoadPending returns all persisted pending entries ordered by timestamp
func (s *Storage) LoadPending(ctx context.Context) ([]*pending.Entry, error) {
	var entries []*pending.Entry

	err := s.forEachCompressed(bucketOutbox, func() any {
		e := &pending.Entry{}
		entries = append(entries, e)
		return e
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Record.Timestamp < entries[j].Record.Timestamp
	})

	return entries, nil
}

// SaveFailed persists entries of the error list
func (s *Storage) SaveFailed(ctx context.Context, failed ...*pending.Failed) error {
	return s.putCompressed(bucketFailed, len(failed), func(i int) (string, any) {
		return failed[i].Record.ID, failed[i]
	})
}

// DeleteFailed removes entries from the error list
func (s *Storage) DeleteFailed(ctx context.Context, ids ...string) error {
	return s.deleteKeys(bucketFailed, ids)
}

// LoadFailed returns the persisted error list
func (s *Storage) LoadFailed(ctx context.Context) ([]*pending.Failed, error) {
	var failed []*pending.Failed

	err := s.forEachCompressed(bucketFailed, func() any {
		f := &pending.Failed{}
		failed = append(failed, f)
		return f
	})
	if err != nil {
		return nil, err
	}

	return failed, nil
}

// putCompressed сохраняет n значений одной транзакцией
func (s *Storage) putCompressed(name []byte, n int, item func(i int) (string, any)) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if n == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			key, v := item(i)
			data, err := encodeCompressed(v)
			if err != nil {
				return fmt.Errorf("failed to encode %s/%s: %w", name, key, err)
			}
			if err := b.Put([]byte(key), data); err != nil {
				return fmt.Errorf("failed to save %s/%s: %w", name, key, err)
			}
		}

		return nil
	})
}

func (s *Storage) deleteKeys(name []byte, keys []string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if len(keys) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return fmt.Errorf("failed to delete %s/%s: %w", name, key, err)
			}
		}

		return nil
	})
}

// forEachCompressed декодирует каждое значение bucket в объект, созданный next
func (s *Storage) forEachCompressed(name []byte, next func() any) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			if err := decodeCompressed(v, next()); err != nil {
				return fmt.Errorf("failed to decode %s/%s: %w", name, k, err)
			}
			return nil
		})
	})
}
