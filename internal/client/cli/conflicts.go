package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/models"
)

// resolutions допустимые значения для resolve
var resolutions = []models.Resolution{
	models.ResolutionLocal,
	models.ResolutionRemote,
	models.ResolutionNewest,
	models.ResolutionPriority,
	models.ResolutionMerge,
}

func parseResolution(s string) (models.Resolution, error) {
	for _, r := range resolutions {
		if string(r) == strings.ToLower(s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid resolution %q: must be one of %v", s, resolutions)
}

func newConflictsCommand(opts *RootOptions) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts waiting for manual resolution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(c *Cli) error {
				return c.runConflicts(history)
			})
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "show resolved conflicts instead")

	return cmd
}

func (c *Cli) runConflicts(history bool) error {
	conflicts := c.engine.Conflicts()
	title := "Open Conflicts"
	if history {
		conflicts = c.engine.ConflictHistory()
		title = "Resolved Conflicts"
	}

	c.io.Printf("=== %s ===\n", title)
	if len(conflicts) == 0 {
		c.io.Println("No conflicts.")
		return nil
	}

	for _, conflict := range conflicts {
		out, err := renderConflict(conflict)
		if err != nil {
			return err
		}
		c.io.Println(out)
	}
	return nil
}

func newResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <conflict-id> <local|remote|newest|priority|merge>",
		Short: "Resolve an open conflict",
		Long: `Resolve an open conflict. The winning record is applied locally and
delivered to the remote store; the discarded records stay in the history.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, err := parseResolution(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), opts, func(c *Cli) error {
				return c.runResolve(cmd.Context(), args[0], resolution)
			})
		},
	}
}

func (c *Cli) runResolve(ctx context.Context, conflictID string, resolution models.Resolution) error {
	resolved, err := c.engine.ResolveConflict(ctx, conflictID, resolution)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", conflictID, err)
	}

	c.io.Printf("✓ Conflict %s resolved (%s)\n", resolved.ID, resolved.Resolution)
	if resolved.Result != nil {
		c.io.Printf("Winner: %s from %s\n", resolved.Result.Operation, resolved.Result.OriginDevice)
	}
	return nil
}
