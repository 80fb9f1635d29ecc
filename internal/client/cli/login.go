package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/handsync/internal/client/auth"
)

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var server, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the device access token issued by the server",
		Long: `Save the device access token issued by the server operator
(handsync-server -issue-token -user <user> -device <device>).

The token is read from --token or prompted for without echo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(c *Cli) error {
				return c.runLogin(cmd, server, token)
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default: remote.url from config)")
	cmd.Flags().StringVar(&token, "token", "", "device access token (prompted when empty)")

	return cmd
}

func (c *Cli) runLogin(cmd *cobra.Command, server, token string) error {
	if token == "" {
		var err error
		token, err = c.io.ReadSecret("Device token: ")
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}

	claims, err := auth.ParseToken(token, time.Now())
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return fmt.Errorf("%w, ask the server operator for a new one", err)
		}
		return err
	}
	if c.cfg.Device.ID != "" && c.cfg.Device.ID != claims.DeviceID {
		return fmt.Errorf("token is issued for device %q, config has device.id %q", claims.DeviceID, c.cfg.Device.ID)
	}

	if server == "" {
		server = c.cfg.Remote.URL
	}

	saved, err := c.session.Login(cmd.Context(), token, server)
	if err != nil {
		return err
	}

	c.io.Println("✓ Login successful!")
	c.io.Printf("User:   %s\n", saved.UserID)
	c.io.Printf("Device: %s\n", saved.DeviceID)
	c.io.Printf("Server: %s\n", saved.ServerURL)
	if saved.ExpiresAt > 0 {
		c.io.Printf("Token expires: %s\n", time.Unix(saved.ExpiresAt, 0).Format(time.RFC3339))
	}
	return nil
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved device token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(c *Cli) error {
				if err := c.session.Logout(cmd.Context()); err != nil {
					return err
				}
				c.io.Println("✓ Logged out. Pending changes stay in the local database.")
				return nil
			})
		},
	}
}
