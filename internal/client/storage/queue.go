package storage

import (
	"context"

	"github.com/iudanet/medsync/internal/models"
)

//go:generate moq -out queue_mock.go . QueueStorage

// QueueStorage defines durable persistence of the sync queue.
// Методы, затрагивающие и очередь, и записи, выполняются в одной транзакции.
type QueueStorage interface {
	// PutEntry upserts an entry by ID
	PutEntry(ctx context.Context, entry *models.QueueEntry) error

	// PutEntryWithRecord saves the record and the entry atomically.
	// For DELETE entries the local record is removed instead and rec may be nil.
	PutEntryWithRecord(ctx context.Context, entry *models.QueueEntry, rec *models.Record) error

	// GetEntry returns ErrEntryNotFound if the entry does not exist
	GetEntry(ctx context.Context, id string) (*models.QueueEntry, error)

	// UpdateEntry applies fn to the stored entry and saves it in one transaction.
	// Returns ErrEntryNotFound if the entry does not exist; fn is not called then.
	UpdateEntry(ctx context.Context, id string, fn func(*models.QueueEntry) error) (*models.QueueEntry, error)

	// ListEntries returns all entries, order unspecified
	ListEntries(ctx context.Context) ([]*models.QueueEntry, error)

	// ListEntriesForRecord returns the entries that mutate one entity
	ListEntriesForRecord(ctx context.Context, table models.Table, id string) ([]*models.QueueEntry, error)

	// DeleteEntry returns ErrEntryNotFound if the entry does not exist
	DeleteEntry(ctx context.Context, id string) error

	// AckEntry removes an acknowledged entry. In the same transaction it marks the
	// record synced when no other entries reference it and rebases the remaining
	// entries of the record onto remoteUpdatedAt.
	AckEntry(ctx context.Context, id string, remoteUpdatedAt int64) error

	// ClearEntries removes every entry and returns how many were removed.
	// Synced flags already set are left as they are.
	ClearEntries(ctx context.Context) (int, error)

	// CountEntries returns the queue length
	CountEntries(ctx context.Context) (int, error)
}
