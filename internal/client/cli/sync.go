package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/engine"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one batch synchronization with the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(c *Cli) error {
				return c.runSync(cmd.Context(), force)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "reconcile every category even when digests match")

	return cmd
}

func (c *Cli) runSync(ctx context.Context, force bool) error {
	c.io.Println("=== Synchronization ===")

	run := c.engine.Sync
	if force {
		run = c.engine.ForceSync
	}

	result, err := run(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	printResult(c, result)

	if result.Outcome != engine.OutcomeSynced {
		return fmt.Errorf("synchronization finished with %d error(s)", len(result.Errors))
	}
	return nil
}

func printResult(c *Cli, result *engine.SyncResult) {
	c.io.Println()
	if result.Outcome == engine.OutcomeSynced {
		c.io.Println("✓ Synchronization completed successfully!")
	} else {
		c.io.Printf("⚠️  Synchronization finished: %s\n", result.Outcome)
	}
	c.io.Println()
	c.io.Printf("Pushed to remote:   %d\n", result.Pushed)
	c.io.Printf("Pulled from remote: %d\n", result.Pulled)
	c.io.Printf("Applied locally:    %d\n", result.Applied)
	if result.Skipped > 0 {
		c.io.Printf("Skipped (stale):    %d\n", result.Skipped)
	}
	if result.Resolved > 0 {
		c.io.Printf("Conflicts resolved: %d\n", result.Resolved)
	}
	if result.Conflicts > 0 {
		c.io.Printf("Open conflicts:     %d (run 'handsync conflicts')\n", result.Conflicts)
	}
	if result.Rejected > 0 {
		c.io.Printf("Rejected:           %d\n", result.Rejected)
	}
	if len(result.Unchanged) > 0 {
		c.io.Printf("Unchanged:          %v\n", result.Unchanged)
	}
	for _, e := range result.Errors {
		c.io.Printf("  [%s] %s\n", e.Kind, e.Error())
	}
}

func newRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [change-id...]",
		Short: "Move failed changes back to the pending set",
		Long: `Move changes whose delivery was given up back to the pending set.
Without arguments every failed change is retried on the next sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(c *Cli) error {
				n := c.engine.Retry(args...)
				c.io.Printf("✓ Requeued %d change(s)\n", n)
				return nil
			})
		},
	}
}
