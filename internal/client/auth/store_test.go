package auth

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/client/storage/boltdb"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	db, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens := NewTokenStore(db)
	key := newKey(t)

	data := &storage.AuthData{
		Username:    "nurse.joy",
		UserID:      "u-1",
		HospitalID:  "st-mary",
		Role:        "nurse",
		AccessToken: "plain-token",
		LocalSalt:   "salt",
	}
	require.NoError(t, tokens.Save(ctx, data, key))
	assert.Equal(t, "plain-token", data.AccessToken, "input must not be modified")

	sealed, err := tokens.LoadSealed(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "plain-token", sealed.AccessToken)

	loaded, err := tokens.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)

	_, err = tokens.Load(ctx, newKey(t))
	assert.Error(t, err)

	require.NoError(t, tokens.Delete(ctx))
	_, err = tokens.Load(ctx, key)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestTokenStore_SaveNil(t *testing.T) {
	db, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Error(t, NewTokenStore(db).Save(context.Background(), nil, newKey(t)))
}
