package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/validation"
)

func newPutCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put <type> <id> [json]",
		Short: "Create or update an entity in the local store",
		Long: `Create or update an entity in the local store. The change is captured
into the pending set and delivered to the remote store by the next sync.

The payload is a JSON document given as an argument, read from --file,
or read from stdin with --file -.

Example:
  handsync put handHistory h-1001 '{"hand":"AKs","result":12.5}'
  handsync put trainingScenarios s1 --file scenario.json`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[2:], file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), opts, func(c *Cli) error {
				return c.runPut(cmd.Context(), args[0], args[1], payload)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read payload from file (- for stdin)")

	return cmd
}

// readPayload возвращает JSON из аргумента или из файла
func readPayload(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	var payload []byte
	switch {
	case len(args) > 0 && file != "":
		return nil, errors.New("payload is given both as argument and --file")
	case len(args) > 0:
		payload = []byte(args[0])
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		payload = data
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		payload = data
	default:
		return nil, errors.New("missing payload: pass JSON as argument or use --file")
	}

	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	return payload, nil
}

func (c *Cli) runPut(ctx context.Context, entityType, entityID string, payload []byte) error {
	if err := validation.ValidateEntityKey(entityType, entityID); err != nil {
		return err
	}

	verb := "Updated"
	_, err := c.store.Read(ctx, entityType, entityID)
	switch {
	case errors.Is(err, storage.ErrEntityNotFound):
		verb = "Created"
		err = c.store.Create(ctx, entityType, entityID, payload)
	case err == nil:
		err = c.store.Update(ctx, entityType, entityID, payload)
	}
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", entityType, entityID, err)
	}

	c.io.Printf("✓ %s %s/%s\n", verb, entityType, entityID)
	c.io.Printf("Pending changes: %d\n", c.engine.Status().PendingChanges)
	return nil
}
