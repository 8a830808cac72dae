package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStorage создает in-memory базу с примененными миграциями
func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	return s, func() {
		require.NoError(t, s.Close())
	}
}

func TestNew_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "server.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	var tables int
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'records')`,
	).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)
	require.NoError(t, s.Close())

	// Повторное открытие не применяет миграции заново
	s, err = New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
