// Package auth manages the device credentials the client uses against the
// remote store and the realtime relay.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/validation"
)

var (
	// ErrInvalidToken возвращается для токена, из которого нельзя извлечь устройство
	ErrInvalidToken = errors.New("invalid device token")

	// ErrTokenExpired возвращается для токена с истекшим сроком
	ErrTokenExpired = errors.New("device token has expired")
)

// Claims claims токена устройства. Подпись проверяет только сервер.
type Claims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// ParseToken извлекает пользователя и устройство из токена без проверки подписи
func ParseToken(token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.DeviceID == "" {
		return nil, fmt.Errorf("%w: user_id and device_id claims are required", ErrInvalidToken)
	}
	if err := validation.ValidateDeviceID(claims.DeviceID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Session хранит учетные данные устройства в storage.AuthStorage
type Session struct {
	storage storage.AuthStorage
	now     func() time.Time
}

// NewSession creates a session over the given credential storage
func NewSession(storage storage.AuthStorage) *Session {
	return &Session{storage: storage, now: time.Now}
}

// Login проверяет токен и сохраняет учетные данные устройства
func (s *Session) Login(ctx context.Context, token, serverURL string) (*storage.AuthData, error) {
	claims, err := ParseToken(token, s.now())
	if err != nil {
		return nil, err
	}

	auth := &storage.AuthData{
		UserID:      claims.UserID,
		DeviceID:    claims.DeviceID,
		AccessToken: token,
		ServerURL:   serverURL,
	}
	if claims.ExpiresAt != nil {
		auth.ExpiresAt = claims.ExpiresAt.Unix()
	}

	if err := s.storage.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return auth, nil
}

// Current возвращает сохраненные учетные данные или nil, если login не выполнялся
func (s *Session) Current(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.storage.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return auth, nil
}

// Expired сообщает, что срок токена истек
func (s *Session) Expired(auth *storage.AuthData) bool {
	return auth != nil && auth.ExpiresAt > 0 && !s.now().Before(time.Unix(auth.ExpiresAt, 0))
}

// Logout удаляет учетные данные. Отложенные изменения остаются в локальной базе.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.storage.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
