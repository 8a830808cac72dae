package storage

import (
	"context"

	"github.com/iudanet/medsync/internal/models"
)

//go:generate moq -out conflicts_mock.go . ConflictStorage

// ConflictStorage defines persistence of unresolved conflicts keyed by "<table>/<id>".
type ConflictStorage interface {
	// PutConflict upserts by key, so repeated detection never duplicates a conflict
	PutConflict(ctx context.Context, c *models.Conflict) error

	// GetConflict returns ErrConflictNotFound if there is no open conflict
	GetConflict(ctx context.Context, key string) (*models.Conflict, error)

	// ListConflicts returns all open conflicts
	ListConflicts(ctx context.Context) ([]*models.Conflict, error)

	// CountConflicts returns the number of open conflicts
	CountConflicts(ctx context.Context) (int, error)

	// ResolveConflict atomically removes the conflict and every queue entry of its
	// entity, then saves rec and enqueues entry when they are non-nil.
	ResolveConflict(ctx context.Context, key string, rec *models.Record, entry *models.QueueEntry) error
}
