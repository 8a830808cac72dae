package storage

import (
	"context"

	"github.com/iudanet/medsync/internal/models"
)

//go:generate moq -out records_mock.go . RecordStorage

// Index имя вторичного индекса записей.
type Index string

// Поддерживаемые индексы
const (
	IndexScope  Index = "scope"  // все записи больницы
	IndexParent Index = "parent" // все записи пациента
	IndexDraft  Index = "draft"  // "true" / "false"
	IndexSynced Index = "synced" // "true" / "false"
)

// Indexes lists every secondary index maintained for each table.
func Indexes() []Index {
	return []Index{IndexScope, IndexParent, IndexDraft, IndexSynced}
}

// RecordStorage defines the per-table key-value store with secondary index lookups.
type RecordStorage interface {
	// SaveRecord upserts by ID and returns the ID. The record is durable when it returns.
	SaveRecord(ctx context.Context, rec *models.Record) (string, error)

	// GetRecord returns ErrRecordNotFound if the record does not exist
	GetRecord(ctx context.Context, table models.Table, id string) (*models.Record, error)

	// ListRecords returns every record of the table, order unspecified
	ListRecords(ctx context.Context, table models.Table) ([]*models.Record, error)

	// ListByIndex returns records whose index value equals value
	ListByIndex(ctx context.Context, table models.Table, index Index, value string) ([]*models.Record, error)

	// DeleteRecord is idempotent: deleting a missing record is not an error
	DeleteRecord(ctx context.Context, table models.Table, id string) error

	// TableStats counts records and their encoded size
	TableStats(ctx context.Context, table models.Table) (*models.TableStats, error)
}
