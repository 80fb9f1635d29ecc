package engine

import (
	"sync"

	"github.com/iudanet/handsync/internal/models"
)

// keyLock сериализует работу с одной сущностью: применение решения к локальному
// и удаленному хранилищу выполняется как одна единица работы на ключ.
type keyLock struct {
	locks map[models.EntityKey]*keyLockEntry
	mu    sync.Mutex
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[models.EntityKey]*keyLockEntry)}
}

// Lock blocks until key is free and returns the unlock function.
func (k *keyLock) Lock(key models.EntityKey) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
