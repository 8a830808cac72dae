package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/crypto"
	"github.com/iudanet/medsync/internal/models"
)

var (
	// BoltDB bucket names
	bucketAuth      = []byte("auth")
	bucketMetadata  = []byte("metadata")
	bucketQueue     = []byte("sync_queue")
	bucketQueueByID = []byte("sync_queue_by_record") // "<table>/<id>\x00<entry_id>" -> nil
	bucketConflicts = []byte("conflicts")
)

// sealedPrefix отмечает значения, зашифрованные AES-GCM. JSON никогда не начинается с 0x00.
const sealedPrefix = 0x00

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db   *bbolt.DB
	aead *crypto.Cipher // nil - значения хранятся открыто
	mu   sync.RWMutex
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SetEncryptionKey enables sealing of values written from now on and unsealing of
// values already sealed. The key must be 32 bytes (AES-256).
func (s *Storage) SetEncryptionKey(key []byte) error {
	c, err := crypto.NewCipher(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aead = c
	return nil
}

func (s *Storage) cipher() *crypto.Cipher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aead
}

// location привязывает шифротекст к bucket и ключу, под которым он лежит
func location(bucketName, key []byte) []byte {
	loc := make([]byte, 0, len(bucketName)+1+len(key))
	loc = append(loc, bucketName...)
	loc = append(loc, '/')
	return append(loc, key...)
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		static := [][]byte{bucketAuth, bucketMetadata, bucketQueue, bucketQueueByID, bucketConflicts}
		for _, name := range static {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		// Bucket на каждую таблицу и на каждый ее индекс
		for _, table := range models.Tables() {
			if _, err := tx.CreateBucketIfNotExists(recordsBucket(table)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", table, err)
			}
			for _, idx := range storage.Indexes() {
				if _, err := tx.CreateBucketIfNotExists(indexBucket(table, idx)); err != nil {
					return fmt.Errorf("failed to create %s/%s index bucket: %w", table, idx, err)
				}
			}
		}

		return nil
	})
}

// view и update оборачивают ошибки bbolt в storage.FaultError,
// оставляя sentinel-ошибки (not found и т.п.) как есть.
func (s *Storage) view(op string, fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return fault(op, s.db.View(fn))
}

func (s *Storage) update(op string, fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return fault(op, s.db.Update(fn))
}

func fault(op string, err error) error {
	if err == nil {
		return nil
	}
	if storage.IsNotFound(err) || errors.Is(err, storage.ErrStorageClosed) || errors.Is(err, storage.ErrLocked) {
		return err
	}
	return &storage.FaultError{Op: op, Err: err}
}

// bucket returns a bucket that initBuckets is expected to have created.
func bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}

// encode сериализует значение в JSON и, если задан ключ, шифрует его.
func (s *Storage) encode(loc []byte, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	c := s.cipher()
	if c == nil {
		return data, nil
	}

	sealed, err := c.Seal(data, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to seal value: %w", err)
	}
	return append([]byte{sealedPrefix}, sealed...), nil
}

// decode обратная операция к encode. bbolt переиспользует память значений
// после закрытия транзакции, поэтому json.Unmarshal копирует данные.
func (s *Storage) decode(loc, raw []byte, v any) error {
	data := raw
	if len(raw) > 0 && raw[0] == sealedPrefix {
		c := s.cipher()
		if c == nil {
			return storage.ErrLocked
		}
		plain, err := c.Open(raw[1:], loc)
		if err != nil {
			return fmt.Errorf("failed to unseal value: %w", err)
		}
		data = plain
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}
