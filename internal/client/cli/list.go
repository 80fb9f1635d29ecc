package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/validation"
)

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <type>",
		Short: "List entities of one type in the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(c *Cli) error {
				return c.runList(cmd.Context(), args[0])
			})
		},
	}
}

func (c *Cli) runList(ctx context.Context, entityType string) error {
	if err := validation.ValidateEntityType(entityType); err != nil {
		return err
	}

	entities, err := c.store.List(ctx, entityType)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", entityType, err)
	}

	c.io.Printf("=== %s ===\n", entityType)
	if len(entities) == 0 {
		c.io.Println("No entities found.")
		return nil
	}

	for _, e := range entities {
		c.io.Printf("%-36s  %s  %s\n", e.ID, e.UpdatedAt.Local().Format(time.DateTime), shortChecksum(e.Checksum))
	}
	c.io.Printf("\nTotal: %d\n", len(entities))
	return nil
}

func shortChecksum(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
