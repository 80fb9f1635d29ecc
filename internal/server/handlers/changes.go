package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iudanet/handsync/internal/crypto"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
	"github.com/iudanet/handsync/internal/validation"
	"github.com/iudanet/handsync/pkg/api"
)

// maxChangeBody ограничение размера тела одного изменения
const maxChangeBody = 10 << 20

// ChangesHandler serves the remote store: change log, entity state and collection digests
type ChangesHandler struct {
	logger  *slog.Logger
	storage storage.ChangeStorage
}

// NewChangesHandler creates a new changes handler
func NewChangesHandler(logger *slog.Logger, storage storage.ChangeStorage) *ChangesHandler {
	return &ChangesHandler{
		logger:  logger,
		storage: storage,
	}
}

// Push обрабатывает POST /api/v1/changes
// Принимает одно изменение. Повторная отправка того же изменения безопасна.
func (h *ChangesHandler) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}
	deviceID, _ := GetDeviceID(ctx)

	var rec models.ChangeRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChangeBody)).Decode(&rec); err != nil {
		h.logger.Warn("Invalid change body", "error", err, "device_id", deviceID)
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateChange(&rec); err != nil {
		h.logger.Warn("Change rejected",
			"error", err,
			"device_id", deviceID,
			"change_id", rec.ID,
			"entity_type", rec.EntityType,
		)
		sendError(w, h.logger, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	result, err := h.storage.SaveChange(ctx, userID, &rec)
	if err != nil {
		if errors.Is(err, storage.ErrChangeConflict) {
			sendError(w, h.logger, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("Failed to save change", "error", err, "user_id", userID, "change_id", rec.ID)
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Change accepted",
		"user_id", userID,
		"device_id", deviceID,
		"change_id", rec.ID,
		"entity", rec.Key().String(),
		"operation", rec.Operation,
		"seq", result.Seq,
		"duplicate", result.Duplicate,
		"current", result.Current,
	)

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	sendJSON(w, h.logger, api.PushResponse{
		Seq:       result.Seq,
		Duplicate: result.Duplicate,
		Current:   result.Current,
	}, status)
}

// Entity обрабатывает GET /api/v1/entities/{type}/{id}
func (h *ChangesHandler) Entity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	entityType, entityID := vars["type"], vars["id"]
	if err := validation.ValidateEntityKey(entityType, entityID); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.storage.LatestChange(ctx, userID, entityType, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			sendError(w, h.logger, "entity not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get entity", "error", err, "user_id", userID, "entity_type", entityType)
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, rec, http.StatusOK)
}

// ChangesSince обрабатывает GET /api/v1/changes/{type}?since=cursor
// Возвращает изменения в порядке приема сервером
func (h *ChangesHandler) ChangesSince(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}

	entityType := mux.Vars(r)["type"]
	if err := validation.ValidateEntityType(entityType); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	// Парсим параметр since
	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			h.logger.Warn("Invalid since parameter", "since", sinceStr)
			sendError(w, h.logger, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	changes, cursor, err := h.storage.ChangesSince(ctx, userID, entityType, since)
	if err != nil {
		h.logger.Error("Failed to get changes", "error", err, "user_id", userID, "entity_type", entityType)
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Changes requested",
		"user_id", userID,
		"entity_type", entityType,
		"since", since,
		"count", len(changes),
		"cursor", cursor,
	)

	sendJSON(w, h.logger, api.ChangesResponse{Changes: changes, Cursor: cursor}, http.StatusOK)
}

// Checksum обрабатывает GET /api/v1/checksum/{type}
func (h *ChangesHandler) Checksum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}

	entityType := mux.Vars(r)["type"]
	if err := validation.ValidateEntityType(entityType); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	checksums, err := h.storage.EntityChecksums(ctx, userID, entityType)
	if err != nil {
		h.logger.Error("Failed to get checksums", "error", err, "user_id", userID, "entity_type", entityType)
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, api.ChecksumResponse{
		EntityType: entityType,
		Checksum:   integrity.CollectionDigest(checksums),
		Count:      len(checksums),
	}, http.StatusOK)
}

// validateChange проверяет запись перед приемом. Зашифрованный payload
// сервер проверить не может, поэтому для него проверяется только структура.
func validateChange(rec *models.ChangeRecord) error {
	if err := validation.ValidateEntityKey(rec.EntityType, rec.EntityID); err != nil {
		return err
	}
	if err := validation.ValidateDeviceID(rec.OriginDevice); err != nil {
		return err
	}
	if crypto.IsSealed(rec.Payload) {
		if rec.Checksum == "" {
			return integrity.ErrEmptyChecksum
		}
		return rec.Validate()
	}
	return rec.Verify()
}
