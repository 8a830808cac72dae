package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/medsync/internal/client/cli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Ctrl+C прерывает синхронизацию и останавливает watch
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli.New(cli.Options{
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit),
	})
	defer func() {
		if err := c.Close(); err != nil {
			slog.Error("failed to close client", "error", err)
		}
	}()

	if err := c.Command().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
