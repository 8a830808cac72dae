package storage

import (
	"context"

	"github.com/iudanet/medsync/pkg/api"
)

// RecordQuery фильтр выборки записей одной таблицы одной больницы
type RecordQuery struct {
	ParentID string // только записи этого пациента
	Since    int64  // только записи с updated_at > Since
	Limit    int    // 0 - без ограничения
}

// RecordStorage defines interface for the system of record.
// Записи хранятся в том виде, в каком приходят по сети; updated_at задает клиент.
type RecordStorage interface {
	// InsertRecord creates a record
	// Returns ErrRecordExists if the id is taken in this table
	InsertRecord(ctx context.Context, rec *api.Record) error

	// UpdateRecord replaces a record unless the stored updated_at is newer than base
	// Returns ErrRecordNotFound or ErrStale
	UpdateRecord(ctx context.Context, rec *api.Record, base int64) error

	// GetRecord retrieves a record regardless of its scope
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, table, id string) (*api.Record, error)

	// ListRecords returns records of a scope ordered by updated_at
	ListRecords(ctx context.Context, scopeID, table string, q RecordQuery) ([]*api.Record, error)

	// DeleteRecord removes a record
	// Returns ErrRecordNotFound if record doesn't exist
	DeleteRecord(ctx context.Context, table, id string) error
}
