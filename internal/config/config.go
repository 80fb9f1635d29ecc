// Package config loads the sync engine configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/handsync/internal/models"
)

// Sync strategies
const (
	StrategyManual = "manual"
	StrategyAuto   = "auto"
	StrategySmart  = "smart"
)

// Remote store kinds
const (
	RemoteHTTP = "http"
	RemoteS3   = "s3"
)

type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Sync     SyncConfig     `yaml:"sync"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Remote   RemoteConfig   `yaml:"remote"`
	Storage  StorageConfig  `yaml:"storage"`
}

type DeviceConfig struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name" validate:"required"`
	Class      models.DeviceClass `yaml:"class" validate:"oneof=desktop mobile tablet cli"`
	Priority   int                `yaml:"priority"`
	StaleAfter time.Duration      `yaml:"stale_after" validate:"gt=0"`
}

type SyncConfig struct {
	Categories     map[string]bool `yaml:"categories"`
	Strategy       string          `yaml:"strategy" validate:"oneof=manual auto smart"`
	ConflictPolicy string          `yaml:"conflict_policy" validate:"oneof=local remote newest priority manual merge"`
	Interval       time.Duration   `yaml:"interval" validate:"gt=0"`
	Throttle       time.Duration   `yaml:"throttle" validate:"gte=0"`
	RemoteTimeout  time.Duration   `yaml:"remote_timeout" validate:"gt=0"`
	MaxPushRetries int             `yaml:"max_push_retries" validate:"gte=1"`
	Batch          BatchConfig     `yaml:"batch"`
}

type BatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

type RealtimeConfig struct {
	URL               string          `yaml:"url" validate:"omitempty,url"`
	HeartbeatInterval time.Duration   `yaml:"heartbeat_interval" validate:"gt=0"`
	DialTimeout       time.Duration   `yaml:"dial_timeout" validate:"gt=0"`
	IdleFactor        int             `yaml:"idle_factor" validate:"gte=2"`
	BacklogSize       int             `yaml:"backlog_size" validate:"gte=1"`
	Reconnect         ReconnectConfig `yaml:"reconnect"`
	Enabled           bool            `yaml:"enabled"`
}

type ReconnectConfig struct {
	Base        time.Duration `yaml:"base" validate:"gt=0"`
	Max         time.Duration `yaml:"max" validate:"gtefield=Base"`
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=0"`
}

type RemoteConfig struct {
	Kind                 string        `yaml:"kind" validate:"oneof=http s3"`
	URL                  string        `yaml:"url" validate:"omitempty,url"`
	EncryptionPassphrase string        `yaml:"encryption_passphrase"`
	Timeout              time.Duration `yaml:"timeout" validate:"gt=0"`
	S3                   S3Config      `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	categories := make(map[string]bool)
	for _, c := range models.DefaultCategories() {
		categories[c] = true
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "handsync"
	}

	return &Config{
		Device: DeviceConfig{
			Name:       hostname,
			Class:      models.DeviceClassCLI,
			StaleAfter: 2 * time.Minute,
		},
		Sync: SyncConfig{
			Strategy:       StrategyAuto,
			Interval:       5 * time.Minute,
			Categories:     categories,
			ConflictPolicy: "newest",
			Throttle:       500 * time.Millisecond,
			RemoteTimeout:  30 * time.Second,
			MaxPushRetries: 5,
			Batch: BatchConfig{
				Enabled:  false,
				Interval: 2 * time.Second,
			},
		},
		Realtime: RealtimeConfig{
			Enabled:           false,
			HeartbeatInterval: 30 * time.Second,
			DialTimeout:       10 * time.Second,
			IdleFactor:        3,
			BacklogSize:       1000,
			Reconnect: ReconnectConfig{
				Base:        time.Second,
				Max:         30 * time.Second,
				MaxAttempts: 10,
			},
		},
		Remote: RemoteConfig{
			Kind:    RemoteHTTP,
			URL:     "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Path: "handsync.db",
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Realtime.Enabled && c.Realtime.URL == "" {
		return errors.New("invalid config: realtime.url is required when realtime is enabled")
	}
	if c.Remote.Kind == RemoteS3 && c.Remote.S3.Bucket == "" {
		return errors.New("invalid config: remote.s3.bucket is required for s3 remote")
	}
	if c.Remote.Kind == RemoteHTTP && c.Remote.URL == "" {
		return errors.New("invalid config: remote.url is required for http remote")
	}
	for category := range c.Sync.Categories {
		if category == "" {
			return errors.New("invalid config: empty sync category")
		}
	}

	return nil
}

// EnabledCategories returns enabled categories, default categories first in their
// usual order, then any extra ones sorted by name.
func (c *Config) EnabledCategories() []string {
	seen := make(map[string]bool)
	var out []string

	for _, category := range models.DefaultCategories() {
		seen[category] = true
		if c.Sync.Categories[category] {
			out = append(out, category)
		}
	}

	var extra []string
	for category, enabled := range c.Sync.Categories {
		if enabled && !seen[category] {
			extra = append(extra, category)
		}
	}
	sort.Strings(extra)

	return append(out, extra...)
}

// IdleTimeout is the time without any inbound message after which the realtime
// connection is considered dead.
func (c *RealtimeConfig) IdleTimeout() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.IdleFactor)
}
