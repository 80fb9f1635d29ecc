// Package cli implements the handsync command line client on top of the sync engine.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/iudanet/handsync/internal/client/auth"
	"github.com/iudanet/handsync/internal/client/iocli"
	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/client/storage/boltdb"
	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/engine"
)

var (
	// ErrNotLoggedIn возвращается, если команде нужен токен устройства
	ErrNotLoggedIn = errors.New("not logged in, run 'handsync login' first")

	// ErrNoDeviceID возвращается, если идентификатор устройства неизвестен
	ErrNoDeviceID = errors.New("device id is unknown: set device.id in config or run 'handsync login'")
)

// Cli одна сессия команды: конфигурация, локальное хранилище и движок
type Cli struct {
	io      iocli.IO
	cfg     *config.Config
	store   *boltdb.Storage
	session *auth.Session
	auth    *storage.AuthData // nil до login
	engine  *engine.Engine
	logger  *slog.Logger
	opts    *RootOptions
}

// open загружает конфигурацию и открывает локальное хранилище без движка
func open(ctx context.Context, opts *RootOptions) (*Cli, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.Storage.Path = opts.DBPath
	}

	store, err := boltdb.New(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	session := auth.NewSession(store)
	current, err := session.Current(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Cli{
		io:      opts.IO,
		cfg:     cfg,
		store:   store,
		session: session,
		auth:    current,
		logger:  newLogger(opts.Verbose),
		opts:    opts,
	}, nil
}

// openEngine открывает сессию и инициализирует движок синхронизации
func openEngine(ctx context.Context, opts *RootOptions) (*Cli, error) {
	c, err := open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := c.startEngine(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cli) startEngine(ctx context.Context) error {
	if err := resolveDeviceID(c.cfg, c.auth); err != nil {
		return err
	}

	newRemote := c.opts.NewRemote
	if newRemote == nil {
		newRemote = defaultRemote
	}
	remote, err := newRemote(ctx, c.cfg, c.auth, c.logger)
	if err != nil {
		return err
	}

	newDialer := c.opts.NewDialer
	if newDialer == nil {
		newDialer = defaultDialer
	}

	deps := engine.Deps{
		Local:  c.store,
		Remote: remote,
		State:  c.store,
		Logger: c.logger,
	}
	if dialer := newDialer(c.cfg, c.auth); dialer != nil {
		deps.Dialer = dialer
	}

	e, err := engine.New(c.cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}
	if err := e.Initialize(ctx); err != nil {
		_ = e.Close()
		return fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	c.engine = e
	return nil
}

// Close останавливает движок и закрывает локальное хранилище
func (c *Cli) Close() error {
	var errs []error
	if c.engine != nil {
		errs = append(errs, c.engine.Close())
	}
	errs = append(errs, c.store.Close())
	return errors.Join(errs...)
}

// resolveDeviceID берет device.id из конфигурации или из токена устройства
func resolveDeviceID(cfg *config.Config, creds *storage.AuthData) error {
	switch {
	case creds != nil && cfg.Device.ID != "" && cfg.Device.ID != creds.DeviceID:
		return fmt.Errorf("device.id %q does not match the token device %q", cfg.Device.ID, creds.DeviceID)
	case cfg.Device.ID == "" && creds != nil:
		cfg.Device.ID = creds.DeviceID
	case cfg.Device.ID == "":
		return ErrNoDeviceID
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withEngine выполняет fn в сессии с инициализированным движком
func withEngine(ctx context.Context, opts *RootOptions, fn func(c *Cli) error) (err error) {
	c, err := openEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(c)
}

// withStore выполняет fn в сессии без движка
func withStore(ctx context.Context, opts *RootOptions, fn func(c *Cli) error) (err error) {
	c, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(c)
}
