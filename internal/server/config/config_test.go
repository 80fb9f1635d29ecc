package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "handsync.db", cfg.Database.Path)
	assert.Equal(t, 30*24*time.Hour, cfg.JWT.Expiration)
	assert.True(t, cfg.JWT.IsDevSecret())
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, slog.LevelInfo, cfg.Logging.SlogLevel())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ADDR", "127.0.0.1:9000")
	t.Setenv("DB_PATH", "/tmp/sync.db")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_EXPIRATION", "1h")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_MINUTE", "5")
	t.Setenv("WS_MAX_CONN_PER_USER", "not-a-number")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/sync.db", cfg.Database.Path)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.False(t, cfg.JWT.IsDevSecret())
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 16, cfg.WebSocket.MaxConnPerUser, "invalid int falls back to default")
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("invalid duration", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_EXPIRATION", "soon")

		_, err := Load()
		assert.ErrorContains(t, err, "invalid JWT_EXPIRATION")
	})

	t.Run("weak secret", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_SECRET", "short")

		_, err := Load()
		assert.ErrorIs(t, err, ErrWeakSecret)
	})
}
