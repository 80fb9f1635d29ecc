package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/handsync/internal/client/api"
	"github.com/iudanet/handsync/internal/client/s3remote"
	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/crypto"
	"github.com/iudanet/handsync/internal/transport"
)

// defaultRemote создает удаленное хранилище по remote.kind
func defaultRemote(ctx context.Context, cfg *config.Config, auth *storage.AuthData, logger *slog.Logger) (storage.RemoteStore, error) {
	switch cfg.Remote.Kind {
	case config.RemoteS3:
		var opts []s3remote.Option
		if cfg.Remote.EncryptionPassphrase != "" {
			sealer, err := crypto.NewSealerFromPassphrase(cfg.Remote.EncryptionPassphrase, "s3://"+cfg.Remote.S3.Bucket+"/"+cfg.Remote.S3.Prefix)
			if err != nil {
				return nil, err
			}
			opts = append(opts, s3remote.WithSealer(sealer))
		}
		store, err := s3remote.NewFromConfig(ctx, cfg.Remote.S3, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 remote: %w", err)
		}
		return store, nil

	default:
		if auth == nil {
			return nil, ErrNotLoggedIn
		}

		opts := []api.Option{
			api.WithToken(auth.AccessToken),
			api.WithTimeout(cfg.Remote.Timeout),
		}
		if cfg.Remote.EncryptionPassphrase != "" {
			sealer, err := crypto.NewSealerFromPassphrase(cfg.Remote.EncryptionPassphrase, auth.UserID)
			if err != nil {
				return nil, err
			}
			opts = append(opts, api.WithSealer(sealer))
		}
		return api.NewClient(serverURL(cfg, auth), opts...), nil
	}
}

// serverURL адрес, сохраненный при login, иначе remote.url
func serverURL(cfg *config.Config, auth *storage.AuthData) string {
	if auth != nil && auth.ServerURL != "" {
		return auth.ServerURL
	}
	return cfg.Remote.URL
}

// defaultDialer создает websocket dialer, если realtime канал включен
func defaultDialer(cfg *config.Config, auth *storage.AuthData) transport.Dialer {
	if !cfg.Realtime.Enabled || cfg.Realtime.URL == "" {
		return nil
	}

	return transport.NewWebSocketDialer(cfg.Realtime.URL, func() http.Header {
		header := http.Header{}
		if auth != nil {
			header.Set("Authorization", "Bearer "+auth.AccessToken)
		}
		return header
	})
}
