package boltdb

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/models"
)

func entryRecordKey(e *models.QueueEntry) []byte {
	return indexKey(e.EntityKey(), e.ID)
}

// PutEntry stores or updates a sync queue entry
func (s *Storage) PutEntry(ctx context.Context, entry *models.QueueEntry) error {
	return s.update("put queue entry", func(tx *bbolt.Tx) error {
		return s.putEntry(tx, entry)
	})
}

// PutEntryWithRecord сохраняет запись и ставит мутацию в очередь одной транзакцией,
// чтобы читатель никогда не увидел несинхронизированную запись без записи в очереди.
// Для DELETE локальная запись удаляется, rec может быть nil.
func (s *Storage) PutEntryWithRecord(ctx context.Context, entry *models.QueueEntry, rec *models.Record) error {
	if entry.Operation != models.OperationDelete {
		if rec == nil {
			return fmt.Errorf("record is required for %s", entry.Operation)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
	}

	return s.update("enqueue local write", func(tx *bbolt.Tx) error {
		if entry.Operation == models.OperationDelete {
			if err := s.deleteRecord(tx, entry.Table, entry.RecordID); err != nil {
				return err
			}
		} else if err := s.putRecord(tx, rec); err != nil {
			return err
		}
		return s.putEntry(tx, entry)
	})
}

// GetEntry retrieves a queue entry by ID
func (s *Storage) GetEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	var entry *models.QueueEntry

	err := s.view("get queue entry", func(tx *bbolt.Tx) error {
		var err error
		entry, err = s.getEntry(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ListEntries returns all queue entries
func (s *Storage) ListEntries(ctx context.Context) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry

	err := s.view("list queue entries", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketQueue)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var entry models.QueueEntry
			if err := s.decode(location(bucketQueue, k), v, &entry); err != nil {
				return fmt.Errorf("queue entry %s: %w", k, err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// ListEntriesForRecord returns entries mutating one entity, in key (creation) order
func (s *Storage) ListEntriesForRecord(ctx context.Context, table models.Table, id string) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry

	err := s.view("list queue entries for record", func(tx *bbolt.Tx) error {
		var err error
		entries, err = s.entriesForRecord(tx, models.EntityKey(table, id))
		return err
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// DeleteEntry removes a queue entry
func (s *Storage) DeleteEntry(ctx context.Context, id string) error {
	return s.update("delete queue entry", func(tx *bbolt.Tx) error {
		entry, err := s.getEntry(tx, id)
		if err != nil {
			return err
		}
		return s.deleteEntry(tx, entry)
	})
}

// UpdateEntry читает запись очереди, применяет fn и сохраняет результат одной
// транзакцией. Если запись уже удалена, возвращается ErrEntryNotFound.
func (s *Storage) UpdateEntry(ctx context.Context, id string, fn func(*models.QueueEntry) error) (*models.QueueEntry, error) {
	var entry *models.QueueEntry

	err := s.update("update queue entry", func(tx *bbolt.Tx) error {
		e, err := s.getEntry(tx, id)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		if e.ID != id {
			return fmt.Errorf("queue entry id changed from %s to %s", id, e.ID)
		}
		if err := s.putEntry(tx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// AckEntry removes an acknowledged entry and updates the record in the same transaction
func (s *Storage) AckEntry(ctx context.Context, id string, remoteUpdatedAt int64) error {
	return s.update("acknowledge queue entry", func(tx *bbolt.Tx) error {
		entry, err := s.getEntry(tx, id)
		if err != nil {
			return err
		}
		if err := s.deleteEntry(tx, entry); err != nil {
			return err
		}

		remaining, err := s.entriesForRecord(tx, entry.EntityKey())
		if err != nil {
			return err
		}

		// Оставшиеся мутации теперь основаны на подтвержденной версии
		if remoteUpdatedAt > 0 {
			for _, e := range remaining {
				e.BaseUpdatedAt = remoteUpdatedAt
				if err := s.putEntry(tx, e); err != nil {
					return err
				}
			}
		}

		if entry.Operation == models.OperationDelete && len(remaining) == 0 {
			// Удаление подтверждено: локальной копии быть не должно, даже если
			// ее успели вернуть чтением с сервера
			return s.deleteRecord(tx, entry.Table, entry.RecordID)
		}

		rec, err := s.getRecord(tx, entry.Table, entry.RecordID)
		if err == storage.ErrRecordNotFound {
			// Запись удалена локально (DELETE) - помечать нечего
			return nil
		}
		if err != nil {
			return err
		}

		if remoteUpdatedAt > 0 {
			rec.RemoteUpdatedAt = remoteUpdatedAt
		}
		if len(remaining) == 0 && !rec.IsDraft {
			rec.Synced = true
		}
		return s.putRecord(tx, rec)
	})
}

// ClearEntries removes every queue entry
func (s *Storage) ClearEntries(ctx context.Context) (int, error) {
	var removed int

	err := s.update("clear queue", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketQueue)
		if err != nil {
			return err
		}
		removed = b.Stats().KeyN

		// Пересоздаем buckets - быстрее, чем удалять ключи по одному
		for _, name := range [][]byte{bucketQueue, bucketQueueByID} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to drop %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// CountEntries returns the queue length
func (s *Storage) CountEntries(ctx context.Context) (int, error) {
	var n int

	err := s.view("count queue entries", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketQueue)
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

func (s *Storage) getEntry(tx *bbolt.Tx, id string) (*models.QueueEntry, error) {
	b, err := bucket(tx, bucketQueue)
	if err != nil {
		return nil, err
	}

	data := b.Get([]byte(id))
	if data == nil {
		return nil, storage.ErrEntryNotFound
	}

	entry := &models.QueueEntry{}
	if err := s.decode(location(bucketQueue, []byte(id)), data, entry); err != nil {
		return nil, fmt.Errorf("queue entry %s: %w", id, err)
	}
	return entry, nil
}

func (s *Storage) putEntry(tx *bbolt.Tx, entry *models.QueueEntry) error {
	b, err := bucket(tx, bucketQueue)
	if err != nil {
		return err
	}
	byRecord, err := bucket(tx, bucketQueueByID)
	if err != nil {
		return err
	}

	data, err := s.encode(location(bucketQueue, []byte(entry.ID)), entry)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(entry.ID), data); err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	if err := byRecord.Put(entryRecordKey(entry), nil); err != nil {
		return fmt.Errorf("failed to index queue entry: %w", err)
	}
	return nil
}

func (s *Storage) deleteEntry(tx *bbolt.Tx, entry *models.QueueEntry) error {
	b, err := bucket(tx, bucketQueue)
	if err != nil {
		return err
	}
	byRecord, err := bucket(tx, bucketQueueByID)
	if err != nil {
		return err
	}

	if err := b.Delete([]byte(entry.ID)); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	if err := byRecord.Delete(entryRecordKey(entry)); err != nil {
		return fmt.Errorf("failed to unindex queue entry: %w", err)
	}
	return nil
}

// entriesForRecord читает записи очереди сущности через индекс; ключи UUIDv7
// упорядочены по времени создания.
func (s *Storage) entriesForRecord(tx *bbolt.Tx, entityKey string) ([]*models.QueueEntry, error) {
	byRecord, err := bucket(tx, bucketQueueByID)
	if err != nil {
		return nil, err
	}

	var entries []*models.QueueEntry
	prefix := indexPrefix(entityKey)
	c := byRecord.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		entry, err := s.getEntry(tx, string(k[len(prefix):]))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// deleteEntriesForRecord удаляет все мутации сущности
func (s *Storage) deleteEntriesForRecord(tx *bbolt.Tx, entityKey string) error {
	entries, err := s.entriesForRecord(tx, entityKey)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.deleteEntry(tx, e); err != nil {
			return err
		}
	}
	return nil
}
