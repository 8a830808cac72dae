package models

import (
	"encoding/json"
	"fmt"
)

// Conflict фиксирует параллельное изменение записи локально и на сервере.
// Обе версии сохраняются до явного разрешения.
type Conflict struct {
	Local      *Record `json:"local"`
	Remote     *Record `json:"remote"`
	Key        string  `json:"key"` // Key "<table>/<id>"
	Table      Table   `json:"table"`
	RecordID   string  `json:"record_id"`
	EntryID    string  `json:"entry_id"` // EntryID запись очереди, на которой обнаружен конфликт
	DetectedAt int64   `json:"detected_at"`
}

// LocalUpdatedAt returns the local version's mutation time.
func (c *Conflict) LocalUpdatedAt() int64 {
	if c.Local == nil {
		return 0
	}
	return c.Local.UpdatedAt
}

// RemoteUpdatedAt returns the remote version's last-modified time.
func (c *Conflict) RemoteUpdatedAt() int64 {
	if c.Remote == nil {
		return 0
	}
	return c.Remote.UpdatedAt
}

// ResolutionStrategy способ разрешения конфликта.
type ResolutionStrategy string

// Стратегии разрешения
const (
	KeepLocal  ResolutionStrategy = "keep_local"
	KeepRemote ResolutionStrategy = "keep_remote"
	Merged     ResolutionStrategy = "merged"
)

// Resolution is the caller's decision for one conflict.
type Resolution struct {
	Strategy ResolutionStrategy `json:"strategy"`
	// Merged payload; required only for the Merged strategy.
	Data json.RawMessage `json:"data,omitempty"`
}

// Validate checks that the resolution is complete.
func (r Resolution) Validate() error {
	switch r.Strategy {
	case KeepLocal, KeepRemote:
		return nil
	case Merged:
		if len(r.Data) == 0 || !json.Valid(r.Data) {
			return fmt.Errorf("merged resolution requires a valid JSON payload")
		}
		return nil
	}
	return fmt.Errorf("unknown resolution strategy %q", r.Strategy)
}
