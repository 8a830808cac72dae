package cli

import (
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/client/sync"
	"github.com/iudanet/medsync/internal/models"
)

func (c *Cli) syncCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c.io.Println("=== Synchronization ===")
			c.io.Println()

			if _, err := c.unlock(ctx); err != nil {
				return err
			}
			if !c.connect(ctx) {
				return network.ErrOffline
			}

			c.io.Println("Starting synchronization with server...")
			result, err := c.app.Sync.Sync(ctx, sync.Options{
				ForceSync: force,
				OnProgress: func(p sync.Progress) {
					line := fmt.Sprintf("  [%d/%d] %-6s %s: %s", p.Done, p.Total, p.Entry.Operation, p.Entry.EntityKey(), p.Outcome)
					if p.Err != nil {
						line += fmt.Sprintf(" (%v)", p.Err)
					}
					c.io.Println(line)
				},
			})
			if err != nil {
				return fmt.Errorf("synchronization failed: %w", err)
			}

			c.io.Println()
			if result.ShortCircuited {
				c.io.Println("✓ Nothing to synchronize (use --force to retry deferred changes).")
				return nil
			}
			c.io.Println("✓ Synchronization completed!")
			c.io.Println()
			c.io.Printf("Pushed to server:   %d change(s)\n", result.Pushed)
			if result.Failed > 0 {
				c.io.Printf("Failed (retrying):  %d\n", result.Failed)
			}
			if result.Rejected > 0 {
				c.io.Printf("Rejected by server: %d\n", result.Rejected)
			}
			if result.Conflicts > 0 {
				c.io.Printf("New conflicts:      %d (see 'medsync conflicts list')\n", result.Conflicts)
			}
			if result.AutoResolved > 0 {
				c.io.Printf("Auto-resolved:      %d\n", result.AutoResolved)
			}
			c.io.Printf("Remaining in queue: %d\n", result.Remaining)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "retry deferred changes now, ignoring backoff and the minimum interval")
	return cmd
}

// watchCommand держит клиент запущенным: опрашивает сервер, синхронизирует при
// восстановлении сети и по расписанию, чистит кэш. Завершается по Ctrl+C.
func (c *Cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run background sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if _, err := c.unlock(ctx); err != nil {
				return err
			}

			var (
				last models.SyncStatus
				mu   stdsync.Mutex
			)
			unsubscribe := c.app.Sync.Subscribe(func(st models.SyncStatus) {
				mu.Lock()
				defer mu.Unlock()
				st.LastSync = 0
				if st == last {
					return
				}
				last = st
				network := "offline"
				if st.IsOnline {
					network = "online"
				}
				c.io.Printf("[%s] %s, %s, pending %d, conflicts %d\n",
					time.Now().Format(time.TimeOnly), network, st.State, st.PendingChanges, st.Conflicts)
			})
			defer unsubscribe()

			if err := c.app.Sync.Start(ctx); err != nil && !errors.Is(err, sync.ErrAlreadyStarted) {
				return err
			}
			defer c.app.Sync.Stop()

			c.io.Println("Watching for changes. Press Ctrl+C to stop.")

			done := make(chan struct{})
			go func() {
				defer close(done)
				c.app.Monitor.Run(ctx, c.app.prober, c.cfg.Network.ProbeInterval, c.cfg.Network.FailureThreshold)
			}()

			<-ctx.Done()
			<-done
			c.io.Println("Stopped.")
			return nil
		},
	}
}
