package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/models"
)

func (c *Cli) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "essential",
			Short: "Download active patients, today's consultations and recent prescriptions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				session, err := c.unlock(ctx)
				if err != nil {
					return err
				}
				if !c.connect(ctx) {
					return network.ErrOffline
				}

				res, err := c.app.Cache.CacheEssentialData(ctx, session.ScopeID)
				if err != nil {
					return fmt.Errorf("failed to cache essential data: %w", err)
				}

				c.io.Println("✓ Essential data cached")
				c.io.Printf("Patients:      %d\n", res.Patients)
				c.io.Printf("Consultations: %d\n", res.Consultations)
				c.io.Printf("Prescriptions: %d\n", res.Prescriptions)
				if res.Skipped > 0 {
					c.io.Printf("Kept local:    %d (unsynchronized changes)\n", res.Skipped)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <table> <id>",
			Short: "Download one record into the cache",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				table, err := models.ParseTable(args[0])
				if err != nil {
					return err
				}
				if _, err := c.unlock(ctx); err != nil {
					return err
				}
				if !c.connect(ctx) {
					return network.ErrOffline
				}

				rec, err := c.app.Cache.CacheRecord(ctx, table, args[1])
				if err != nil {
					return err
				}
				c.io.Println("✓ Record cached")
				c.io.Println()
				c.printRecord(rec)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if _, err := c.unlock(ctx); err != nil {
					return err
				}

				stats, err := c.app.Cache.GetCacheStats(ctx)
				if err != nil {
					return err
				}

				c.io.Println("=== Cache ===")
				c.io.Println()
				c.io.Printf("Patients:      %d\n", stats.Patients)
				c.io.Printf("Consultations: %d\n", stats.Consultations)
				c.io.Printf("Prescriptions: %d\n", stats.Prescriptions)
				c.io.Printf("Drafts:        %d\n", stats.Drafts)
				c.io.Printf("Unsynced:      %d\n", stats.Unsynced)
				c.io.Printf("Size:          %s\n", humanize.Bytes(uint64(max(stats.SizeBytes, 0))))
				c.io.Printf("Last cached:   %s\n", formatMillis(stats.LastCachedAt))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Remove expired synchronized records",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if _, err := c.unlock(ctx); err != nil {
					return err
				}

				removed, err := c.app.Cache.CleanExpiredCache(ctx)
				if err != nil {
					return err
				}
				c.io.Printf("✓ Removed %d expired record(s)\n", removed)
				return nil
			},
		},
	)
	return cmd
}
