package engine

import (
	"errors"
	"time"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
)

var (
	// ErrSyncInProgress is returned when a sync is requested while another run is active
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotInitialized is returned by operations called before Initialize
	ErrNotInitialized = errors.New("engine is not initialized")

	// ErrClosed is returned by operations called after Close
	ErrClosed = errors.New("engine is closed")
)

// ErrorKind категория ошибки синхронизации
type ErrorKind string

const (
	// KindNetwork сбой транспорта или удаленного хранилища, повторяется позже
	KindNetwork ErrorKind = "network"
	// KindConflict конкурирующие изменения, передаются resolver'у
	KindConflict ErrorKind = "conflict"
	// KindValidation поврежденная или некорректная запись, не применяется
	KindValidation ErrorKind = "validation"
	// KindStorage сбой локального хранилища, не повторяется движком
	KindStorage ErrorKind = "storage"
)

// SyncError одна ошибка, зафиксированная во время синхронизации
type SyncError struct {
	At         time.Time `json:"at"`
	Kind       ErrorKind `json:"kind"`
	Category   string    `json:"category,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	ChangeID   string    `json:"change_id,omitempty"`
	Reason     string    `json:"reason"`
}

func (e SyncError) Error() string {
	if e.EntityID != "" {
		return string(e.Kind) + " error on " + e.EntityType + ":" + e.EntityID + ": " + e.Reason
	}
	if e.Category != "" {
		return string(e.Kind) + " error in " + e.Category + ": " + e.Reason
	}
	return string(e.Kind) + " error: " + e.Reason
}

// classify maps an error returned by a remote call or record check to its kind.
// Unknown remote errors count as network errors and are retried.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, integrity.ErrChecksumMismatch),
		errors.Is(err, integrity.ErrEmptyChecksum),
		errors.Is(err, models.ErrMalformedRecord),
		errors.Is(err, storage.ErrRejected):
		return KindValidation
	}
	return KindNetwork
}

func recordError(kind ErrorKind, rec *models.ChangeRecord, err error) SyncError {
	return SyncError{
		At:         time.Now(),
		Kind:       kind,
		Category:   rec.EntityType,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		ChangeID:   rec.ID,
		Reason:     err.Error(),
	}
}

func categoryError(kind ErrorKind, category string, err error) SyncError {
	return SyncError{
		At:       time.Now(),
		Kind:     kind,
		Category: category,
		Reason:   err.Error(),
	}
}
