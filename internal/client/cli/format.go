package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iudanet/medsync/internal/models"
)

// formatMillis печатает время в мс относительно текущего ("3 minutes ago")
func formatMillis(ms int64) string {
	if ms <= 0 {
		return "never"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func recordState(rec *models.Record) string {
	switch {
	case rec.IsDraft:
		return "draft"
	case !rec.Synced:
		return "pending"
	default:
		return "synced"
	}
}

func (c *Cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
}

func (c *Cli) printJSON(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		c.io.Println(string(raw))
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.io.Println(string(raw))
		return
	}
	c.io.Println(string(pretty))
}

func (c *Cli) printRecord(rec *models.Record) {
	c.io.Printf("ID:       %s\n", rec.ID)
	c.io.Printf("Table:    %s\n", rec.Table)
	c.io.Printf("Hospital: %s\n", rec.ScopeID)
	if rec.ParentID != "" {
		c.io.Printf("Patient:  %s\n", rec.ParentID)
	}
	c.io.Printf("State:    %s\n", recordState(rec))
	c.io.Printf("Updated:  %s\n", formatMillis(rec.UpdatedAt))
	if rec.CachedAt > 0 {
		c.io.Printf("Cached:   %s\n", formatMillis(rec.CachedAt))
	}
	c.io.Println()
	c.printJSON(rec.Data)
}

// readJSONFile читает payload из файла; "-" - из stdin
func readJSONFile(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func envPasswordSet() bool {
	return os.Getenv(PasswordEnv) != ""
}
