package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/handsync/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена устройства
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				writeError(w, "missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				logger.Warn("Invalid Authorization header format", "path", r.URL.Path)
				writeError(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			// Валидируем токен
			claims, err := handlers.ValidateAccessToken(jwtConfig, parts[1])
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			// Добавляем данные из токена в контекст
			ctx := handlers.WithIdentity(r.Context(), claims.UserID, claims.DeviceID)

			logger.Debug("Device authenticated", "user_id", claims.UserID, "device_id", claims.DeviceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
