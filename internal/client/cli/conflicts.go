package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/medsync/internal/models"
)

func (c *Cli) conflictsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review and resolve records changed both locally and on the server",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List open conflicts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if _, err := c.unlock(ctx); err != nil {
					return err
				}

				conflicts, err := c.app.Sync.ListConflicts(ctx)
				if err != nil {
					return err
				}
				if len(conflicts) == 0 {
					c.io.Println("No conflicts.")
					return nil
				}

				w := c.table()
				_, _ = fmt.Fprintln(w, "KEY\tDETECTED\tLOCAL CHANGE\tSERVER CHANGE")
				for _, cf := range conflicts {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						cf.Key, formatMillis(cf.DetectedAt), formatMillis(cf.LocalUpdatedAt()), formatMillis(cf.RemoteUpdatedAt()))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "show <table/id>",
			Short: "Show both versions of a conflicting record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				if _, err := c.unlock(ctx); err != nil {
					return err
				}

				cf, err := c.app.Sync.GetConflict(ctx, args[0])
				if err != nil {
					return err
				}

				c.io.Printf("=== Conflict %s ===\n", cf.Key)
				c.io.Printf("Detected: %s\n", formatMillis(cf.DetectedAt))
				c.io.Println()
				c.io.Printf("--- Local (changed %s) ---\n", formatMillis(cf.LocalUpdatedAt()))
				if cf.Local != nil {
					c.printJSON(cf.Local.Data)
				} else {
					c.io.Println("(deleted)")
				}
				c.io.Println()
				c.io.Printf("--- Server (changed %s) ---\n", formatMillis(cf.RemoteUpdatedAt()))
				if cf.Remote != nil {
					c.printJSON(cf.Remote.Data)
				} else {
					c.io.Println("(deleted)")
				}
				return nil
			},
		},
		c.conflictsResolveCommand(),
	)
	return cmd
}

func (c *Cli) conflictsResolveCommand() *cobra.Command {
	var keep, mergedFile string

	cmd := &cobra.Command{
		Use:   "resolve <table/id>",
		Short: "Resolve a conflict by keeping one version or supplying a merged one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var res models.Resolution
			switch {
			case keep != "" && mergedFile != "":
				return fmt.Errorf("--keep and --merged are mutually exclusive")
			case keep == "local":
				res.Strategy = models.KeepLocal
			case keep == "remote":
				res.Strategy = models.KeepRemote
			case keep != "":
				return fmt.Errorf("--keep must be local or remote, got %q", keep)
			case mergedFile != "":
				data, err := os.ReadFile(mergedFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", mergedFile, err)
				}
				res.Strategy = models.Merged
				res.Data = json.RawMessage(data)
			default:
				return fmt.Errorf("specify --keep local|remote or --merged FILE")
			}
			if err := res.Validate(); err != nil {
				return err
			}

			if _, err := c.unlock(ctx); err != nil {
				return err
			}
			if err := c.app.Sync.ResolveConflict(ctx, args[0], res); err != nil {
				return err
			}

			c.io.Printf("✓ Conflict %s resolved (%s)\n", args[0], res.Strategy)
			if res.Strategy != models.KeepRemote {
				c.io.Println("The chosen version will be sent on the next 'medsync sync'.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keep, "keep", "", "version to keep: local or remote")
	cmd.Flags().StringVar(&mergedFile, "merged", "", "JSON file with the merged payload")
	return cmd
}
