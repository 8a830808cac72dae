package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/medsync/internal/server/storage"
	"github.com/iudanet/medsync/pkg/api"
)

const recordColumns = `table_name, id, scope_id, parent_id, updated_by, data, updated_at`

// InsertRecord creates a record
func (s *Storage) InsertRecord(ctx context.Context, rec *api.Record) error {
	query := `INSERT INTO records (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.Table,
		rec.ID,
		rec.ScopeID,
		rec.ParentID,
		rec.UpdatedBy,
		[]byte(rec.Data),
		rec.UpdatedAt,
	)
	if err != nil {
		if isConstraint(err) {
			return storage.ErrRecordExists
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// UpdateRecord replaces a record unless the stored version is newer than base.
// Проверка и запись выполняются одним UPDATE, чтобы параллельные клиенты не
// проскочили между ними.
func (s *Storage) UpdateRecord(ctx context.Context, rec *api.Record, base int64) error {
	query := `
		UPDATE records
		SET scope_id = ?, parent_id = ?, updated_by = ?, data = ?, updated_at = ?
		WHERE table_name = ? AND id = ? AND updated_at <= ?
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.ScopeID,
		rec.ParentID,
		rec.UpdatedBy,
		[]byte(rec.Data),
		rec.UpdatedAt,
		rec.Table,
		rec.ID,
		base,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Ничего не обновлено: записи нет или она новее base
	if _, err := s.GetRecord(ctx, rec.Table, rec.ID); err != nil {
		return err
	}
	return storage.ErrStale
}

// GetRecord retrieves a record by table and id
func (s *Storage) GetRecord(ctx context.Context, table, id string) (*api.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE table_name = ? AND id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, table, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns records of one scope and table, oldest change first.
// With a limit only the most recently changed records are returned.
func (s *Storage) ListRecords(ctx context.Context, scopeID, table string, q storage.RecordQuery) ([]*api.Record, error) {
	var (
		where = []string{"scope_id = ?", "table_name = ?"}
		args  = []any{scopeID, table}
	)
	if q.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, q.ParentID)
	}
	if q.Since > 0 {
		where = append(where, "updated_at > ?")
		args = append(args, q.Since)
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + strings.Join(where, " AND ")
	if q.Limit > 0 {
		// limit оставляет самые свежие изменения; порядок выдачи тот же
		query = `SELECT ` + recordColumns + ` FROM (` + query +
			` ORDER BY updated_at DESC, id DESC LIMIT ?)`
		args = append(args, q.Limit)
	}
	query += ` ORDER BY updated_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*api.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// DeleteRecord removes a record
func (s *Storage) DeleteRecord(ctx context.Context, table, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE table_name = ? AND id = ?`, table, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*api.Record, error) {
	rec := &api.Record{}
	var data []byte

	if err := row.Scan(
		&rec.Table,
		&rec.ID,
		&rec.ScopeID,
		&rec.ParentID,
		&rec.UpdatedBy,
		&data,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Data = data
	return rec, nil
}
