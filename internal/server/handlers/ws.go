package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// RelayHub обслуживает установленные realtime соединения
type RelayHub interface {
	Serve(conn *websocket.Conn, userID, deviceID string)
}

// WSHandler upgrades authenticated requests to relay connections
type WSHandler struct {
	logger   *slog.Logger
	hub      RelayHub
	upgrader websocket.Upgrader
}

// NewWSHandler creates a websocket handler
func NewWSHandler(logger *slog.Logger, hub RelayHub, readBufferSize, writeBufferSize int) *WSHandler {
	return &WSHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// Клиенты не браузерные, доступ проверяется токеном
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle обрабатывает GET /api/v1/ws
func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		sendError(w, h.logger, "missing identity", http.StatusUnauthorized)
		return
	}
	deviceID, ok := GetDeviceID(r.Context())
	if !ok {
		sendError(w, h.logger, "token without device", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже отправил ответ с ошибкой
		h.logger.Warn("Websocket upgrade failed", "error", err, "device_id", deviceID)
		return
	}

	h.logger.Debug("Relay connection opened", "user_id", userID, "device_id", deviceID)
	h.hub.Serve(conn, userID, deviceID)
}
