package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/validation"
)

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Print an entity from the local store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(c *Cli) error {
				return c.runGet(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func (c *Cli) runGet(ctx context.Context, entityType, entityID string) error {
	if err := validation.ValidateEntityKey(entityType, entityID); err != nil {
		return err
	}

	entity, err := c.store.Read(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrEntityNotFound) {
			return fmt.Errorf("entity not found: %s/%s", entityType, entityID)
		}
		return fmt.Errorf("failed to read %s/%s: %w", entityType, entityID, err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, entity.Payload, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(entity.Payload)
	}
	c.io.Println(pretty.String())
	return nil
}
