package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/models"
)

// indexSep отделяет значение индекса от ID записи в ключе индекса
const indexSep = 0x00

func recordsBucket(table models.Table) []byte {
	return []byte("records:" + string(table))
}

func indexBucket(table models.Table, idx storage.Index) []byte {
	return []byte("idx:" + string(table) + ":" + string(idx))
}

func indexKey(value, id string) []byte {
	key := make([]byte, 0, len(value)+1+len(id))
	key = append(key, value...)
	key = append(key, indexSep)
	return append(key, id...)
}

func indexPrefix(value string) []byte {
	return append([]byte(value), indexSep)
}

// indexValues возвращает значения всех индексов записи; пустые значения не индексируются
func indexValues(rec *models.Record) map[storage.Index]string {
	return map[storage.Index]string{
		storage.IndexScope:  rec.ScopeID,
		storage.IndexParent: rec.ParentID,
		storage.IndexDraft:  strconv.FormatBool(rec.IsDraft),
		storage.IndexSynced: strconv.FormatBool(rec.Synced),
	}
}

// SaveRecord stores or updates a record and its index entries
func (s *Storage) SaveRecord(ctx context.Context, rec *models.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("invalid record: %w", err)
	}

	err := s.update("save record", func(tx *bbolt.Tx) error {
		return s.putRecord(tx, rec)
	})
	if err != nil {
		return "", err
	}

	return rec.ID, nil
}

// GetRecord retrieves a record by table and ID
func (s *Storage) GetRecord(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	var rec *models.Record

	err := s.view("get record", func(tx *bbolt.Tx) error {
		var err error
		rec, err = s.getRecord(tx, table, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListRecords returns all records of the table
func (s *Storage) ListRecords(ctx context.Context, table models.Table) ([]*models.Record, error) {
	var records []*models.Record

	err := s.view("list records", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, recordsBucket(table))
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var rec models.Record
			if err := s.decode(location(recordsBucket(table), k), v, &rec); err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// ListByIndex returns records whose index value equals value (prefix range scan)
func (s *Storage) ListByIndex(ctx context.Context, table models.Table, index storage.Index, value string) ([]*models.Record, error) {
	var records []*models.Record

	err := s.view("list by index", func(tx *bbolt.Tx) error {
		idx, err := bucket(tx, indexBucket(table, index))
		if err != nil {
			return err
		}

		prefix := indexPrefix(value)
		c := idx.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := string(k[len(prefix):])
			rec, err := s.getRecord(tx, table, id)
			if err != nil {
				return fmt.Errorf("index %s points to record %s: %w", index, id, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteRecord removes a record and its index entries; missing records are ignored
func (s *Storage) DeleteRecord(ctx context.Context, table models.Table, id string) error {
	return s.update("delete record", func(tx *bbolt.Tx) error {
		return s.deleteRecord(tx, table, id)
	})
}

// TableStats counts records, drafts, unsynced records and encoded size.
// Не расшифровывает значения, поэтому работает и без ключа.
func (s *Storage) TableStats(ctx context.Context, table models.Table) (*models.TableStats, error) {
	stats := &models.TableStats{}

	err := s.view("table stats", func(tx *bbolt.Tx) error {
		b, err := bucket(tx, recordsBucket(table))
		if err != nil {
			return err
		}
		if err := b.ForEach(func(k, v []byte) error {
			stats.Count++
			stats.Bytes += int64(len(k) + len(v))
			return nil
		}); err != nil {
			return err
		}

		drafts, err := bucket(tx, indexBucket(table, storage.IndexDraft))
		if err != nil {
			return err
		}
		stats.Drafts = countPrefix(drafts, indexPrefix("true"))

		synced, err := bucket(tx, indexBucket(table, storage.IndexSynced))
		if err != nil {
			return err
		}
		stats.Unsynced = countPrefix(synced, indexPrefix("false"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func countPrefix(b *bbolt.Bucket, prefix []byte) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		n++
	}
	return n
}

func (s *Storage) getRecord(tx *bbolt.Tx, table models.Table, id string) (*models.Record, error) {
	b, err := bucket(tx, recordsBucket(table))
	if err != nil {
		return nil, err
	}

	data := b.Get([]byte(id))
	if data == nil {
		return nil, storage.ErrRecordNotFound
	}

	rec := &models.Record{}
	if err := s.decode(location(recordsBucket(table), []byte(id)), data, rec); err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	return rec, nil
}

// putRecord сохраняет запись и перестраивает ее индексы внутри транзакции tx
func (s *Storage) putRecord(tx *bbolt.Tx, rec *models.Record) error {
	if err := s.deleteRecord(tx, rec.Table, rec.ID); err != nil {
		return err
	}

	b, err := bucket(tx, recordsBucket(rec.Table))
	if err != nil {
		return err
	}

	data, err := s.encode(location(recordsBucket(rec.Table), []byte(rec.ID)), rec)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(rec.ID), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	for idx, value := range indexValues(rec) {
		if value == "" {
			continue
		}
		ib, err := bucket(tx, indexBucket(rec.Table, idx))
		if err != nil {
			return err
		}
		if err := ib.Put(indexKey(value, rec.ID), nil); err != nil {
			return fmt.Errorf("failed to update %s index: %w", idx, err)
		}
	}

	return nil
}

// deleteRecord удаляет запись и ее ключи индексов; отсутствие записи не ошибка
func (s *Storage) deleteRecord(tx *bbolt.Tx, table models.Table, id string) error {
	old, err := s.getRecord(tx, table, id)
	if err == storage.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	for idx, value := range indexValues(old) {
		if value == "" {
			continue
		}
		ib, err := bucket(tx, indexBucket(table, idx))
		if err != nil {
			return err
		}
		if err := ib.Delete(indexKey(value, id)); err != nil {
			return fmt.Errorf("failed to update %s index: %w", idx, err)
		}
	}

	b, err := bucket(tx, recordsBucket(table))
	if err != nil {
		return err
	}
	if err := b.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}
