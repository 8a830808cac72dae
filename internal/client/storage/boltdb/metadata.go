package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	keyLastSyncTimestamp  = "last_sync_timestamp"
	keyLastCacheTimestamp = "last_cache_timestamp"
)

// SaveLastSyncTimestamp saves the timestamp of the last successful sync
func (s *Storage) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	return s.putInt64("save last sync timestamp", keyLastSyncTimestamp, timestamp)
}

// GetLastSyncTimestamp retrieves the timestamp of the last successful sync
// Returns 0 if no sync has been performed yet
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (int64, error) {
	return s.getInt64("get last sync timestamp", keyLastSyncTimestamp)
}

// SaveLastCacheTimestamp saves when essential data was last cached
func (s *Storage) SaveLastCacheTimestamp(ctx context.Context, timestamp int64) error {
	return s.putInt64("save last cache timestamp", keyLastCacheTimestamp, timestamp)
}

// GetLastCacheTimestamp returns 0 if essential data was never cached
func (s *Storage) GetLastCacheTimestamp(ctx context.Context) (int64, error) {
	return s.getInt64("get last cache timestamp", keyLastCacheTimestamp)
}

func (s *Storage) putInt64(op, key string, value int64) error {
	return s.update(op, func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}

		// Конвертируем int64 в bytes
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(value))

		if err := b.Put([]byte(key), buf); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
		return nil
	})
}

func (s *Storage) getInt64(op, key string) (int64, error) {
	var value int64

	err := s.view(op, func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}

		buf := b.Get([]byte(key))
		if buf == nil {
			// Значения еще нет - возвращаем 0
			return nil
		}
		if len(buf) != 8 {
			return fmt.Errorf("%s: corrupted value of %d bytes", key, len(buf))
		}

		value = int64(binary.BigEndian.Uint64(buf))
		return nil
	})
	if err != nil {
		return 0, err
	}

	return value, nil
}
