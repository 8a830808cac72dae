package boltdb

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/models"
)

func createTestRecord(table models.Table, id, scope, parent string) *models.Record {
	return &models.Record{
		ID:        id,
		Table:     table,
		ScopeID:   scope,
		ParentID:  parent,
		Data:      json.RawMessage(`{"notes":"` + id + `"}`),
		UpdatedAt: 1000,
	}
}

func recordIDs(records []*models.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestStorage_SaveGetRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rec := createTestRecord(models.TablePatients, "p-1", "h-1", "")

	id, err := store.SaveRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)

	got, err := store.GetRecord(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Записи разных таблиц не пересекаются
	_, err = store.GetRecord(ctx, models.TableConsultations, "p-1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_SaveRecord_Invalid(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.SaveRecord(context.Background(), &models.Record{Table: models.TablePatients})
	assert.Error(t, err)
}

func TestStorage_SaveRecord_Upsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rec := createTestRecord(models.TablePatients, "p-1", "h-1", "")
	_, err := store.SaveRecord(ctx, rec)
	require.NoError(t, err)

	updated := rec.Clone()
	updated.Data = json.RawMessage(`{"notes":"changed"}`)
	updated.UpdatedAt = 2000
	_, err = store.SaveRecord(ctx, updated)
	require.NoError(t, err)

	all, err := store.ListRecords(ctx, models.TablePatients)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2000), all[0].UpdatedAt)
	assert.JSONEq(t, `{"notes":"changed"}`, string(all[0].Data))
}

func TestStorage_ListByIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	records := []*models.Record{
		createTestRecord(models.TableConsultations, "c-1", "h-1", "p-1"),
		createTestRecord(models.TableConsultations, "c-2", "h-1", "p-1"),
		createTestRecord(models.TableConsultations, "c-3", "h-1", "p-2"),
		createTestRecord(models.TableConsultations, "c-4", "h-2", "p-3"),
	}
	records[1].IsDraft = true
	records[2].Synced = true

	for _, r := range records {
		_, err := store.SaveRecord(ctx, r)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		index storage.Index
		value string
		want  []string
	}{
		{name: "by scope", index: storage.IndexScope, value: "h-1", want: []string{"c-1", "c-2", "c-3"}},
		{name: "by parent", index: storage.IndexParent, value: "p-1", want: []string{"c-1", "c-2"}},
		{name: "drafts", index: storage.IndexDraft, value: "true", want: []string{"c-2"}},
		{name: "synced", index: storage.IndexSynced, value: "true", want: []string{"c-3"}},
		{name: "unsynced", index: storage.IndexSynced, value: "false", want: []string{"c-1", "c-2", "c-4"}},
		{name: "prefix is not a match", index: storage.IndexScope, value: "h", want: []string{}},
		{name: "no match", index: storage.IndexParent, value: "p-9", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListByIndex(ctx, models.TableConsultations, tt.index, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, recordIDs(got))
		})
	}
}

func TestStorage_IndexFollowsUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rec := createTestRecord(models.TablePatients, "p-1", "h-1", "")
	rec.IsDraft = true
	_, err := store.SaveRecord(ctx, rec)
	require.NoError(t, err)

	// Черновик финализирован и перенесен в другую больницу
	rec.IsDraft = false
	rec.ScopeID = "h-2"
	_, err = store.SaveRecord(ctx, rec)
	require.NoError(t, err)

	drafts, err := store.ListByIndex(ctx, models.TablePatients, storage.IndexDraft, "true")
	require.NoError(t, err)
	assert.Empty(t, drafts)

	old, err := store.ListByIndex(ctx, models.TablePatients, storage.IndexScope, "h-1")
	require.NoError(t, err)
	assert.Empty(t, old)

	current, err := store.ListByIndex(ctx, models.TablePatients, storage.IndexScope, "h-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, recordIDs(current))
}

func TestStorage_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	rec := createTestRecord(models.TablePatients, "p-1", "h-1", "")
	_, err := store.SaveRecord(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, store.DeleteRecord(ctx, models.TablePatients, "p-1"))

	_, err = store.GetRecord(ctx, models.TablePatients, "p-1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	byScope, err := store.ListByIndex(ctx, models.TablePatients, storage.IndexScope, "h-1")
	require.NoError(t, err)
	assert.Empty(t, byScope)

	// Удаление несуществующей записи не ошибка
	assert.NoError(t, store.DeleteRecord(ctx, models.TablePatients, "p-1"))
	assert.NoError(t, store.DeleteRecord(ctx, models.TablePatients, "never-existed"))
}

func TestStorage_TableStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	stats, err := store.TableStats(ctx, models.TablePrescriptions)
	require.NoError(t, err)
	assert.Equal(t, &models.TableStats{}, stats)

	draft := createTestRecord(models.TablePrescriptions, "rx-1", "h-1", "p-1")
	draft.IsDraft = true
	synced := createTestRecord(models.TablePrescriptions, "rx-2", "h-1", "p-1")
	synced.Synced = true
	pending := createTestRecord(models.TablePrescriptions, "rx-3", "h-1", "p-1")

	for _, r := range []*models.Record{draft, synced, pending} {
		_, err := store.SaveRecord(ctx, r)
		require.NoError(t, err)
	}

	stats, err = store.TableStats(ctx, models.TablePrescriptions)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 1, stats.Drafts)
	assert.Equal(t, 2, stats.Unsynced)
	assert.Greater(t, stats.Bytes, int64(0))
}
