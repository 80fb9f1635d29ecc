package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/handsync/internal/server"
	"github.com/iudanet/handsync/internal/server/config"
	"github.com/iudanet/handsync/internal/server/handlers"
	"github.com/iudanet/handsync/internal/server/middleware"
	"github.com/iudanet/handsync/internal/server/relay"
	"github.com/iudanet/handsync/internal/server/storage/sqlite"
	"github.com/iudanet/handsync/internal/validation"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	issueToken := flag.Bool("issue-token", false, "Issue a device access token and exit")
	userID := flag.String("user", "", "User ID for -issue-token")
	deviceID := flag.String("device", "", "Device ID for -issue-token")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))

	jwtCfg := handlers.JWTConfig{
		Secret:         []byte(cfg.JWT.Secret),
		AccessTokenTTL: cfg.JWT.Expiration,
	}

	if *issueToken {
		if err := printToken(jwtCfg, *userID, *deviceID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, jwtCfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, jwtCfg handlers.JWTConfig, logger *slog.Logger) error {
	if cfg.JWT.IsDevSecret() {
		logger.Warn("Using default JWT secret, set JWT_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	hub := relay.NewHub(relay.Options{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		SendBuffer:     relay.DefaultOptions().SendBuffer,
	}, store, logger)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, logger)
		defer limiter.Stop()
	}

	handler := server.NewRouter(server.Deps{
		Store:             store,
		Health:            store.DB(),
		Hub:               hub,
		Limiter:           limiter,
		Logger:            logger,
		JWT:               jwtCfg,
		Version:           Version,
		WSReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WSWriteBufferSize: cfg.WebSocket.WriteBufferSize,
	})
	srv := server.NewHTTPServer(cfg.Server.Addr, handler)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting handsync server",
			"addr", cfg.Server.Addr,
			"version", Version,
			"db_path", cfg.Database.Path,
			"rate_limit", cfg.RateLimit.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server")
	case err := <-serveErr:
		stopHub()
		<-hubDone
		return fmt.Errorf("failed to serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket соединения Shutdown не закрывает, их закрывает hub
	stopHub()
	<-hubDone

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func printToken(cfg handlers.JWTConfig, userID, deviceID string) error {
	if userID == "" || deviceID == "" {
		return errors.New("-user and -device are required")
	}
	if err := validation.ValidateDeviceID(deviceID); err != nil {
		return err
	}

	token, expiresIn, err := handlers.GenerateAccessToken(cfg, userID, deviceID)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Expires in: %s\n", time.Duration(expiresIn)*time.Second)
	return nil
}

func printVersion() {
	fmt.Printf("Handsync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
