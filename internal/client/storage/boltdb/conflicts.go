package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/models"
)

// PutConflict stores a conflict by key, replacing any previous version
func (s *Storage) PutConflict(ctx context.Context, c *models.Conflict) error {
	return s.update("put conflict", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}

		data, err := s.encode(location(bucketConflicts, []byte(c.Key)), c)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(c.Key), data); err != nil {
			return fmt.Errorf("failed to save conflict: %w", err)
		}
		return nil
	})
}

// GetConflict retrieves an open conflict by key
func (s *Storage) GetConflict(ctx context.Context, key string) (*models.Conflict, error) {
	var c *models.Conflict

	err := s.view("get conflict", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}

		data := b.Get([]byte(key))
		if data == nil {
			return storage.ErrConflictNotFound
		}

		c = &models.Conflict{}
		return s.decode(location(bucketConflicts, []byte(key)), data, c)
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// ListConflicts returns all open conflicts ordered by key
func (s *Storage) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	var conflicts []*models.Conflict

	err := s.view("list conflicts", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var c models.Conflict
			if err := s.decode(location(bucketConflicts, k), v, &c); err != nil {
				return fmt.Errorf("conflict %s: %w", k, err)
			}
			conflicts = append(conflicts, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return conflicts, nil
}

// CountConflicts returns the number of open conflicts
func (s *Storage) CountConflicts(ctx context.Context) (int, error) {
	var n int

	err := s.view("count conflicts", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// ResolveConflict applies a resolution in one transaction
func (s *Storage) ResolveConflict(ctx context.Context, key string, rec *models.Record, entry *models.QueueEntry) error {
	if rec != nil {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
	}

	return s.update("resolve conflict", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}
		if b.Get([]byte(key)) == nil {
			return storage.ErrConflictNotFound
		}
		if err := b.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete conflict: %w", err)
		}

		// Старые мутации сущности заменяются решением пользователя
		if err := s.deleteEntriesForRecord(tx, key); err != nil {
			return err
		}

		if rec != nil {
			if err := s.putRecord(tx, rec); err != nil {
				return err
			}
		}
		if entry != nil {
			if err := s.putEntry(tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}
