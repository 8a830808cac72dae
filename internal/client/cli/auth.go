package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iudanet/medsync/internal/validation"
)

func (c *Cli) registerCommand() *cobra.Command {
	var hospital, role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c.io.Println("=== Registration ===")
			c.io.Println()

			username, err := c.io.ReadInput("Username: ")
			if err != nil {
				return fmt.Errorf("failed to read username: %w", err)
			}
			if err := validation.ValidateUsername(username); err != nil {
				return fmt.Errorf("invalid username: %w", err)
			}

			if hospital == "" {
				if hospital, err = c.io.ReadInput("Hospital ID: "); err != nil {
					return fmt.Errorf("failed to read hospital id: %w", err)
				}
			}
			if err := validation.ValidateHospitalID(hospital); err != nil {
				return fmt.Errorf("invalid hospital id: %w", err)
			}

			password, err := c.password("Password: ")
			if err != nil {
				return err
			}
			if err := validation.ValidatePassword(password); err != nil {
				return fmt.Errorf("invalid password: %w", err)
			}
			if c.passwords == (Passwords{}) && !envPasswordSet() {
				confirmation, err := c.io.ReadPassword("Confirm password: ")
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				if confirmation != password {
					return fmt.Errorf("passwords do not match")
				}
			}

			c.io.Println()
			c.io.Println("Registering...")

			resp, err := c.app.Auth.Register(ctx, username, password, hospital, role)
			if err != nil {
				return err
			}

			c.io.Println()
			c.io.Println("✓ Registration successful!")
			c.io.Printf("User ID: %s\n", resp.UserID)
			c.io.Println()
			c.io.Println("Run 'medsync login' to start working.")
			return nil
		},
	}

	cmd.Flags().StringVar(&hospital, "hospital", "", "hospital ID the account belongs to")
	cmd.Flags().StringVar(&role, "role", "", "staff role: doctor, nurse, admin (default doctor)")
	return cmd
}

func (c *Cli) loginCommand() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c.io.Println("=== Login ===")
			c.io.Println()

			var err error
			if username == "" {
				if username, err = c.io.ReadInput("Username: "); err != nil {
					return fmt.Errorf("failed to read username: %w", err)
				}
			}

			password, err := c.password("Password: ")
			if err != nil {
				return err
			}

			c.io.Println()
			c.io.Println("Authenticating...")

			session, err := c.app.Auth.Login(ctx, username, password)
			if err != nil {
				return err
			}
			c.attach(session)

			c.io.Println()
			c.io.Println("✓ Login successful!")
			c.io.Printf("Username: %s\n", session.Username)
			c.io.Printf("Hospital: %s\n", session.ScopeID)
			c.io.Printf("Role:     %s\n", session.Role)
			if session.ExpiresAt > 0 {
				c.io.Printf("Session expires %s\n", humanize.Time(time.Unix(session.ExpiresAt, 0)))
			}
			c.io.Println()
			c.io.Println("Your session has been saved securely.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	return cmd
}

func (c *Cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the local session",
		Long:  "Remove the local session. Cached records and queued changes stay encrypted on disk until the next login.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			c.io.Println("✓ Logged out.")
			return nil
		},
	}
}

func (c *Cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, connectivity and sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c.io.Println("=== Status ===")
			c.io.Println()

			isAuth, err := c.app.Auth.IsAuthenticated(ctx)
			if err != nil {
				return fmt.Errorf("failed to check authentication: %w", err)
			}
			if !isAuth {
				c.io.Println("Session:   not authenticated")
				c.io.Println("Run 'medsync login' to authenticate.")
			} else {
				username, err := c.app.Auth.Username(ctx)
				if err != nil {
					return fmt.Errorf("failed to get auth data: %w", err)
				}
				c.io.Printf("Session:   %s\n", username)
			}

			c.app.Probe(ctx)
			st := c.app.Sync.GetSyncStatus()

			network := "offline"
			if st.IsOnline {
				network = "online"
			}
			c.io.Printf("Network:   %s\n", network)
			c.io.Printf("State:     %s\n", st.State)
			c.io.Printf("Last sync: %s\n", formatMillis(st.LastSync))
			if st.LastError != "" {
				c.io.Printf("Error:     %s\n", st.LastError)
			}
			c.io.Println()

			if st.PendingChanges > 0 {
				c.io.Printf("⚠️  Pending sync: %d change(s) waiting to be synchronized\n", st.PendingChanges)
				c.io.Println("Run 'medsync sync' to synchronize with server.")
			} else {
				c.io.Println("✓ All changes synchronized with server")
			}
			if st.Conflicts > 0 {
				c.io.Printf("⚠️  %d conflict(s) need attention, see 'medsync conflicts list'\n", st.Conflicts)
			}
			return nil
		},
	}
}
