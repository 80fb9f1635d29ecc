// Package server assembles the remote store API and the realtime relay.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/handsync/internal/server/handlers"
	"github.com/iudanet/handsync/internal/server/middleware"
	"github.com/iudanet/handsync/internal/server/storage"
)

// Store is everything the API needs from persistence
type Store interface {
	storage.ChangeStorage
	storage.DeviceStorage
}

// Deps зависимости HTTP API
type Deps struct {
	Store   Store
	Health  handlers.Pinger
	Hub     handlers.RelayHub
	Limiter *middleware.RateLimiter
	Logger  *slog.Logger
	JWT     handlers.JWTConfig
	Version string

	WSReadBufferSize  int
	WSWriteBufferSize int
}

// NewRouter builds the /api/v1 routes. Everything except health requires a device token.
func NewRouter(deps Deps) http.Handler {
	changesHandler := handlers.NewChangesHandler(deps.Logger, deps.Store)
	devicesHandler := handlers.NewDevicesHandler(deps.Logger, deps.Store)
	healthHandler := handlers.NewHealthHandler(deps.Logger, deps.Health, deps.Version)

	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(deps.Logger))
	r.Use(middleware.LoggingWithSkip(deps.Logger, []string{"/api/v1/health"}))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(deps.Logger, deps.JWT))
	if deps.Limiter != nil {
		protected.Use(middleware.RateLimitMiddleware(deps.Limiter, middleware.ByDevice))
	}

	protected.HandleFunc("/changes", changesHandler.Push).Methods(http.MethodPost)
	protected.HandleFunc("/changes/{type}", changesHandler.ChangesSince).Methods(http.MethodGet)
	protected.HandleFunc("/entities/{type}/{id}", changesHandler.Entity).Methods(http.MethodGet)
	protected.HandleFunc("/checksum/{type}", changesHandler.Checksum).Methods(http.MethodGet)

	protected.HandleFunc("/devices", devicesHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/devices/{id}", devicesHandler.Put).Methods(http.MethodPut)

	if deps.Hub != nil {
		wsHandler := handlers.NewWSHandler(deps.Logger, deps.Hub, deps.WSReadBufferSize, deps.WSWriteBufferSize)
		protected.HandleFunc("/ws", wsHandler.Handle).Methods(http.MethodGet)
	}

	return r
}

// NewHTTPServer wraps the router with timeouts suitable for long-lived websocket connections
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
