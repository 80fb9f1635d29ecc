package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/engine"
)

type statusView struct {
	DeviceID string
	UserID   string
	Status   engine.Status
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changes, conflicts and known devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(c *Cli) error {
				return c.runStatus(cmd.Context(), asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func (c *Cli) runStatus(ctx context.Context, asJSON bool) error {
	if err := c.startEngine(ctx); err != nil {
		if !errors.Is(err, ErrNotLoggedIn) && !errors.Is(err, ErrNoDeviceID) {
			return err
		}
		return c.printLoggedOut(ctx)
	}

	view := statusView{
		DeviceID: c.engine.DeviceID(),
		Status:   c.engine.Status(),
	}
	if c.auth != nil {
		view.UserID = c.auth.UserID
	}

	if asJSON {
		data, err := json.MarshalIndent(view.Status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		c.io.Println(string(data))
		return nil
	}

	if err := statusTmpl.Execute(c.io, view); err != nil {
		return fmt.Errorf("failed to render status: %w", err)
	}

	if c.session.Expired(c.auth) {
		c.io.Println()
		c.io.Println("⚠️  Device token has expired. Run 'handsync login' with a new token.")
	}
	return nil
}

func (c *Cli) printLoggedOut(ctx context.Context) error {
	c.io.Println("=== Sync Status ===")
	c.io.Println()
	c.io.Println("Status: Not logged in")

	entries, err := c.store.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending changes: %w", err)
	}
	if len(entries) > 0 {
		c.io.Printf("⚠️  Pending sync: %d change(s) waiting to be synchronized\n", len(entries))
	}
	c.io.Println()
	c.io.Println("Run 'handsync login' to connect this device.")
	return nil
}
