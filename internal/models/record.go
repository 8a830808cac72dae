package models

import (
	"encoding/json"
	"fmt"
)

// Table идентифицирует коллекцию сущностей (patients, consultations, prescriptions).
type Table string

// Поддерживаемые коллекции
const (
	TablePatients      Table = "patients"
	TableConsultations Table = "consultations"
	TablePrescriptions Table = "prescriptions"
)

// Tables returns every collection in a stable order.
func Tables() []Table {
	return []Table{TablePatients, TableConsultations, TablePrescriptions}
}

// ParseTable converts a collection name into a Table.
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown table %q", s)
	}
	return t, nil
}

// Valid reports whether t names a known collection.
func (t Table) Valid() bool {
	switch t {
	case TablePatients, TableConsultations, TablePrescriptions:
		return true
	}
	return false
}

func (t Table) String() string { return string(t) }

// Record представляет сущность в локальном хранилище.
// Доменные поля лежат в Data и для ядра синхронизации непрозрачны.
type Record struct {
	ID       string          `json:"id"`                  // ID глобально уникальный идентификатор (UUID)
	Table    Table           `json:"table"`               // Table коллекция, к которой относится запись
	ScopeID  string          `json:"scope_id"`            // ScopeID идентификатор больницы (tenant)
	ParentID string          `json:"parent_id,omitempty"` // ParentID пациент, к которому относится консультация/рецепт
	Data     json.RawMessage `json:"data,omitempty"`      // Data доменный payload

	// UpdatedAt время последней локальной мутации (мс, монотонно)
	UpdatedAt int64 `json:"updated_at"`
	// RemoteUpdatedAt последняя версия, подтвержденная сервером (0 если неизвестна)
	RemoteUpdatedAt int64 `json:"remote_updated_at,omitempty"`
	// CachedAt время последнего обновления кэша с сервера (мс)
	CachedAt int64 `json:"cached_at,omitempty"`

	IsDraft bool `json:"is_draft"` // IsDraft запись намеренно не отправляется на сервер
	Synced  bool `json:"synced"`   // Synced локальная копия совпадает с подтвержденной сервером
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Data != nil {
		c.Data = make(json.RawMessage, len(r.Data))
		copy(c.Data, r.Data)
	}
	return &c
}

// HasLocalChanges reports whether the record carries writes the remote has not acknowledged.
func (r *Record) HasLocalChanges() bool {
	return r.IsDraft || !r.Synced
}

// IsNewerThan сравнивает две версии записи по UpdatedAt (Last-Write-Wins).
// При равных timestamp побеждает other, чтобы ничья не перезаписывала сервер.
func (r *Record) IsNewerThan(other *Record) bool {
	return r.UpdatedAt > other.UpdatedAt
}

// ConflictBase returns the version a queued write of this record is based on:
// the last remote-acknowledged timestamp, or the local one if the remote never saw it.
func (r *Record) ConflictBase() int64 {
	if r.RemoteUpdatedAt > 0 {
		return r.RemoteUpdatedAt
	}
	return r.UpdatedAt
}

// Validate checks the structural fields shared by every collection.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if !r.Table.Valid() {
		return fmt.Errorf("unknown table %q", r.Table)
	}
	if r.Synced && r.IsDraft {
		return fmt.Errorf("record %s: draft cannot be synced", r.ID)
	}
	if len(r.Data) > 0 && !json.Valid(r.Data) {
		return fmt.Errorf("record %s: data is not valid JSON", r.ID)
	}
	return nil
}
