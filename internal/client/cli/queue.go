package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/iudanet/medsync/internal/models"
)

func (c *Cli) queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage changes waiting to be synchronized",
	}

	cmd.AddCommand(
		c.queueListCommand(),
		c.queueStatsCommand(),
		&cobra.Command{
			Use:   "remove <entry-id>",
			Short: "Drop a queued change without sending it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				if _, err := c.unlock(ctx); err != nil {
					return err
				}
				if err := c.app.Queue.Remove(ctx, args[0]); err != nil {
					return err
				}
				c.io.Printf("✓ Entry %s removed\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "priority <entry-id> <low|normal|medium|high>",
			Short: "Change the priority of a queued change",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				p, err := models.ParsePriority(args[1])
				if err != nil {
					return err
				}
				if _, err := c.unlock(ctx); err != nil {
					return err
				}
				if err := c.app.Queue.UpdatePriority(ctx, args[0], p); err != nil {
					return err
				}
				c.io.Printf("✓ Entry %s priority set to %s\n", args[0], p)
				return nil
			},
		},
		c.queueRetryCommand(),
		c.queueClearCommand(),
	)
	return cmd
}

func (c *Cli) queueListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued changes in the order they will be sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := c.unlock(ctx); err != nil {
				return err
			}

			entries, err := c.app.Queue.ListOrdered(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				c.io.Println("Queue is empty.")
				return nil
			}

			now := c.app.clock.Now()
			w := c.table()
			_, _ = fmt.Fprintln(w, "ID\tOPERATION\tRECORD\tPRIORITY\tRETRIES\tSTATE\tERROR")
			for _, e := range entries {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.ID, e.Operation, e.EntityKey(), e.Priority, e.RetryCount, entryState(e, now), e.Error)
			}
			return w.Flush()
		},
	}
}

// entryState: rejected - ждет решения пользователя, retry - отложена, ready - уйдет при синхронизации
func entryState(e *models.QueueEntry, now int64) string {
	switch {
	case e.Rejected:
		return "rejected"
	case e.NextRetryAt > now:
		return "retry " + formatMillis(e.NextRetryAt)
	default:
		return "ready"
	}
}

func (c *Cli) queueStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := c.unlock(ctx); err != nil {
				return err
			}

			stats, err := c.app.Queue.Stats(ctx)
			if err != nil {
				return err
			}

			c.io.Println("=== Sync Queue ===")
			c.io.Println()
			c.io.Printf("Total:       %d\n", stats.Total)
			c.io.Printf("Failed:      %d\n", stats.Failed)
			c.io.Printf("Backing off: %d\n", stats.BackingOff)
			c.io.Printf("Rejected:    %d\n", stats.Rejected)
			if stats.Total == 0 {
				return nil
			}

			c.io.Println()
			for _, t := range models.Tables() {
				if n := stats.ByTable[t]; n > 0 {
					c.io.Printf("  %-14s %d\n", t, n)
				}
			}
			for _, op := range []models.Operation{models.OperationInsert, models.OperationUpdate, models.OperationDelete} {
				if n := stats.ByOperation[op]; n > 0 {
					c.io.Printf("  %-14s %d\n", op, n)
				}
			}
			priorities := make([]models.Priority, 0, len(stats.ByPriority))
			for p := range stats.ByPriority {
				priorities = append(priorities, p)
			}
			sort.Slice(priorities, func(i, j int) bool { return priorities[i] > priorities[j] })
			for _, p := range priorities {
				c.io.Printf("  %-14s %d\n", p, stats.ByPriority[p])
			}
			return nil
		},
	}
}

func (c *Cli) queueRetryCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [entry-id]",
		Short: "Make failed or rejected changes eligible again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if all == (len(args) == 1) {
				return fmt.Errorf("specify either an entry id or --all")
			}
			if _, err := c.unlock(ctx); err != nil {
				return err
			}

			if all {
				n, err := c.app.Queue.RetryAll(ctx)
				if err != nil {
					return err
				}
				c.io.Printf("✓ %d entr(ies) scheduled for retry\n", n)
				return nil
			}

			if err := c.app.Queue.Retry(ctx, args[0]); err != nil {
				return err
			}
			c.io.Printf("✓ Entry %s scheduled for retry\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "retry every failed or rejected entry")
	return cmd
}

func (c *Cli) queueClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := c.unlock(ctx); err != nil {
				return err
			}

			ok, err := c.confirm("Unsynchronized changes will be lost. Continue?", yes)
			if err != nil {
				return err
			}
			if !ok {
				c.io.Println("Cancelled.")
				return nil
			}

			n, err := c.app.Queue.Clear(ctx)
			if err != nil {
				return err
			}
			c.io.Printf("✓ Removed %d entr(ies)\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
