package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/client/iocli"
	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/transport"
)

// RemoteFactory создает удаленное хранилище для сессии
type RemoteFactory func(ctx context.Context, cfg *config.Config, auth *storage.AuthData, logger *slog.Logger) (storage.RemoteStore, error)

// DialerFactory создает realtime dialer. nil результат отключает realtime канал.
type DialerFactory func(cfg *config.Config, auth *storage.AuthData) transport.Dialer

// RootOptions holds global flags and dependencies shared by all commands.
type RootOptions struct {
	IO         iocli.IO
	ConfigPath string
	DBPath     string
	Verbose    bool

	// NewRemote overrides the remote store built from remote.kind (for testing).
	NewRemote RemoteFactory
	// NewDialer overrides the websocket dialer built from realtime.url (for testing).
	NewDialer DialerFactory
}

// NewRootCommand creates the root command for the handsync CLI.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts.IO == nil {
		opts.IO = iocli.NewStdio()
	}

	cmd := &cobra.Command{
		Use:   "handsync",
		Short: "Handsync - keep hand histories in sync across devices",
		Long: `Handsync keeps local application data consistent with the remote store
and with the user's other devices.

Local changes are captured into a durable pending set and delivered on the
next sync. Competing changes are resolved by the configured conflict policy
or queued for manual resolution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetOut(opts.IO)
	cmd.SetErr(opts.IO)

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to local database (overrides storage.path)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newPutCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newConflictsCommand(opts))
	cmd.AddCommand(newResolveCommand(opts))
	cmd.AddCommand(newRunCommand(opts))

	return cmd
}
