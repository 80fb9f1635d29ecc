package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/validation"
)

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an entity from the local store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(c *Cli) error {
				return c.runDelete(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func (c *Cli) runDelete(ctx context.Context, entityType, entityID string) error {
	if err := validation.ValidateEntityKey(entityType, entityID); err != nil {
		return err
	}

	if err := c.store.Delete(ctx, entityType, entityID); err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			return fmt.Errorf("entity not found: %s/%s", entityType, entityID)
		}
		return fmt.Errorf("failed to delete %s/%s: %w", entityType, entityID, err)
	}

	c.io.Printf("✓ Deleted %s/%s\n", entityType, entityID)
	c.io.Printf("Pending changes: %d\n", c.engine.Status().PendingChanges)
	return nil
}
