package storage

import "context"

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastSyncTimestamp saves the timestamp of the last successful sync
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error

	// GetLastSyncTimestamp retrieves the timestamp of the last successful sync
	// Returns 0 if no sync has been performed yet
	GetLastSyncTimestamp(ctx context.Context) (int64, error)

	// SaveLastCacheTimestamp saves when essential data was last cached
	SaveLastCacheTimestamp(ctx context.Context, timestamp int64) error

	// GetLastCacheTimestamp returns 0 if essential data was never cached
	GetLastCacheTimestamp(ctx context.Context) (int64, error)
}
