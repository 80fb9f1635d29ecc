package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/engine"
)

func newRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep syncing in the foreground until interrupted",
		Long: `Start the sync engine with the configured strategy and realtime channel
and keep it running until SIGINT or SIGTERM.

Example:
  handsync run --config handsync.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withEngine(ctx, opts, func(c *Cli) error {
				return c.runForeground(ctx)
			})
		},
	}
}

func (c *Cli) runForeground(ctx context.Context) error {
	c.engine.On(engine.EventSynced, func(ev engine.Event) {
		c.io.Printf("sync %s: pushed=%d pulled=%d applied=%d conflicts=%d\n",
			ev.Result.Outcome, ev.Result.Pushed, ev.Result.Pulled, ev.Result.Applied, ev.Result.Conflicts)
	})
	c.engine.On(engine.EventConflictDetected, func(ev engine.Event) {
		c.io.Printf("conflict %s on %s/%s\n", ev.Conflict.ID, ev.Conflict.EntityType, ev.Conflict.EntityID)
	})
	c.engine.On(engine.EventConflictResolved, func(ev engine.Event) {
		c.io.Printf("conflict %s resolved (%s)\n", ev.Conflict.ID, ev.Conflict.Resolution)
	})
	c.engine.On(engine.EventConnected, func(engine.Event) {
		c.io.Println("realtime connected")
	})
	c.engine.On(engine.EventDisconnected, func(engine.Event) {
		c.io.Println("realtime disconnected")
	})
	c.engine.On(engine.EventMaxReconnectAttempts, func(ev engine.Event) {
		c.io.Printf("realtime gave up after %d attempts\n", ev.Attempts)
	})

	if err := c.engine.Start(ctx); err != nil {
		return err
	}
	c.io.Printf("Syncing as %s (strategy %s), press Ctrl+C to stop\n", c.engine.DeviceID(), c.cfg.Sync.Strategy)

	// Первый запуск сразу, не дожидаясь таймера
	if _, err := c.engine.Sync(ctx); err != nil {
		c.logger.Warn("Initial sync failed", "error", err)
	}

	<-ctx.Done()
	c.io.Println("Stopping...")
	return nil
}
