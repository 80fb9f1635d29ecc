package storage

import (
	"context"
)

//go:generate moq -out authstorage_mock.go . AuthStorage

// AuthStorage defines interface for storing device credentials on client.
type AuthStorage interface {
	// SaveAuth stores device credentials
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored device credentials
	// Returns ErrAuthNotFound if no credentials exist
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored credentials (logout)
	DeleteAuth(ctx context.Context) error
}

// AuthData represents the credentials a device uses against the remote store and relay.
type AuthData struct {
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
	ServerURL   string `json:"server_url"`
	ExpiresAt   int64  `json:"expires_at"`
}
