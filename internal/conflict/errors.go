package conflict

import "errors"

var (
	// ErrConflictNotFound возвращается, если конфликт с таким ID неизвестен
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrAlreadyResolved возвращается при попытке повторно разрешить конфликт
	ErrAlreadyResolved = errors.New("conflict already resolved")

	// ErrUnknownPolicy возвращается для неизвестной политики разрешения
	ErrUnknownPolicy = errors.New("unknown conflict policy")

	// ErrNoRecords возвращается, если разрешать нечего
	ErrNoRecords = errors.New("no records to resolve")
)
