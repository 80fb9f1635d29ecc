package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
	"github.com/iudanet/handsync/internal/validation"
	"github.com/iudanet/handsync/pkg/api"
)

// DevicesHandler serves the per-user device directory
type DevicesHandler struct {
	logger  *slog.Logger
	storage storage.DeviceStorage
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(logger *slog.Logger, storage storage.DeviceStorage) *DevicesHandler {
	return &DevicesHandler{
		logger:  logger,
		storage: storage,
	}
}

// Put обрабатывает PUT /api/v1/devices/{id}
// Устройство может обновлять только свою запись.
func (h *DevicesHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}
	tokenDevice, _ := GetDeviceID(ctx)

	deviceID := mux.Vars(r)["id"]
	if err := validation.ValidateDeviceID(deviceID); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}
	if deviceID != tokenDevice {
		h.logger.Warn("Device tried to update another device", "device_id", tokenDevice, "target", deviceID)
		sendError(w, h.logger, "token is not issued for this device", http.StatusForbidden)
		return
	}

	var device models.Device
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&device); err != nil {
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}
	if device.ID == "" {
		device.ID = deviceID
	}
	if device.ID != deviceID {
		sendError(w, h.logger, "device id in body does not match path", http.StatusBadRequest)
		return
	}

	if err := h.storage.PutDevice(ctx, userID, &device); err != nil {
		h.logger.Error("Failed to save device", "error", err, "user_id", userID, "device_id", deviceID)
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Device registered", "user_id", userID, "device_id", deviceID, "priority", device.Priority)
	w.WriteHeader(http.StatusNoContent)
}

// List обрабатывает GET /api/v1/devices
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}

	devices, err := h.storage.ListDevices(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to list devices", "error", err, "user_id", userID)
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, api.DevicesResponse{Devices: devices}, http.StatusOK)
}
