package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит настройки сервера синхронизации
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Enabled           bool
}

type LoggingConfig struct {
	Level string
}

const devSecret = "dev-secret-change-in-production"

// ErrWeakSecret возвращается, если JWT секрет короче 32 байт
var ErrWeakSecret = errors.New("JWT_SECRET must be at least 32 bytes")

// Load читает конфигурацию из окружения. Файл .env необязателен.
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	shutdown, err := getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pongWait, err := getEnvAsDuration("WS_PONG_WAIT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADDR", ":8080"),
			ShutdownTimeout: shutdown,
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "handsync.db"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", devSecret),
			Expiration: jwtExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:       10 * time.Second,
			PongWait:        pongWait,
			PingPeriod:      pongWait * 9 / 10,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 16),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 600),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if len(cfg.JWT.Secret) < 32 {
		return nil, ErrWeakSecret
	}

	return cfg, nil
}

// SlogLevel переводит LOG_LEVEL в уровень slog. Неизвестные значения дают Info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// IsDevSecret сообщает, что используется секрет по умолчанию
func (c JWTConfig) IsDevSecret() bool {
	return c.Secret == devSecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
