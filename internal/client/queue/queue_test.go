package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/client/storage/boltdb"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/models"
)

// stepClock возвращает возрастающее время, начиная с 1_000_000 мс
type stepClock struct {
	now int64
}

func (c *stepClock) Now() int64 {
	c.now++
	return c.now
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *boltdb.Storage, *stepClock) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	clk := &stepClock{now: 1_000_000}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, clk, logger, opts...), store, clk
}

func testRecord(id string) *models.Record {
	return &models.Record{
		ID:        id,
		Table:     models.TablePatients,
		ScopeID:   "h-1",
		Data:      json.RawMessage(`{"first_name":"Anna","last_name":"Petrova"}`),
		UpdatedAt: 500,
	}
}

func TestQueue_ListOrdered_Priority(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	low, err := q.Enqueue(ctx, Mutation{Record: testRecord("p-low"), Operation: models.OperationInsert}.WithPriority(models.PriorityLow))
	require.NoError(t, err)
	high, err := q.Enqueue(ctx, Mutation{Record: testRecord("p-high"), Operation: models.OperationInsert, Priority: models.PriorityHigh})
	require.NoError(t, err)
	normal, err := q.Enqueue(ctx, Mutation{Record: testRecord("p-normal"), Operation: models.OperationInsert})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, normal.Priority, "zero priority means default")

	ordered, err := q.ListOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{high.ID, normal.ID, low.ID}, []string{ordered[0].ID, ordered[1].ID, ordered[2].ID})
}

func TestQueue_ListOrdered_FIFOWithinPriority(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	var ids []string
	for _, id := range []string{"p-3", "p-1", "p-2"} {
		e, err := q.Enqueue(ctx, Mutation{Record: testRecord(id), Operation: models.OperationInsert})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	ordered, err := q.ListOrdered(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(ordered))
	for _, e := range ordered {
		got = append(got, e.ID)
	}
	assert.Equal(t, ids, got)

	// смена приоритета меняет только позицию при сортировке
	require.NoError(t, q.UpdatePriority(ctx, ids[2], models.PriorityHigh))
	ordered, err = q.ListOrdered(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], ordered[0].ID)
	assert.Equal(t, ids[0], ordered[1].ID)

	assert.ErrorIs(t, q.UpdatePriority(ctx, ids[0], models.Priority(9)), ErrInvalidPriority)
	assert.ErrorIs(t, q.UpdatePriority(ctx, "missing", models.PriorityLow), storage.ErrEntryNotFound)
}

func TestQueue_Enqueue_Validation(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	draft := testRecord("d-1")
	draft.IsDraft = true

	tests := []struct {
		name    string
		wantErr error
		m       Mutation
	}{
		{name: "draft", m: Mutation{Record: draft, Operation: models.OperationInsert}, wantErr: ErrDraft},
		{name: "bad priority", m: Mutation{Record: testRecord("p-1"), Operation: models.OperationInsert, Priority: 7}, wantErr: ErrInvalidPriority},
		{name: "no record", m: Mutation{Operation: models.OperationInsert}},
		{name: "bad operation", m: Mutation{Record: testRecord("p-1"), Operation: "UPSERT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(ctx, tt.m)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_EnqueueRecord(t *testing.T) {
	ctx := context.Background()
	q, store, _ := newTestQueue(t)

	rec := testRecord("p-1")
	rec.RemoteUpdatedAt = 400
	rec.Synced = true

	entry, err := q.EnqueueRecord(ctx, Mutation{Record: rec, Operation: models.OperationUpdate, UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(400), entry.BaseUpdatedAt, "base is the last acknowledged remote version")
	assert.Equal(t, "u-1", entry.UserID)

	local, err := store.GetRecord(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.False(t, local.Synced)

	snapshot, err := entry.Record()
	require.NoError(t, err)
	assert.JSONEq(t, string(rec.Data), string(snapshot.Data))

	pending, err := q.HasPending(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.True(t, pending)

	// DELETE удаляет локальную запись в той же транзакции
	_, err = q.EnqueueRecord(ctx, Mutation{Record: rec, Operation: models.OperationDelete})
	require.NoError(t, err)
	_, err = store.GetRecord(ctx, models.TablePatients, "p-1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	entries, err := q.EntriesFor(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.OperationUpdate, entries[0].Operation)
	assert.Equal(t, models.OperationDelete, entries[1].Operation)
}

func TestQueue_AckMarksSynced(t *testing.T) {
	ctx := context.Background()
	q, store, _ := newTestQueue(t)

	first, err := q.EnqueueRecord(ctx, Mutation{Record: testRecord("p-1"), Operation: models.OperationInsert})
	require.NoError(t, err)
	second, err := q.EnqueueRecord(ctx, Mutation{Record: testRecord("p-1"), Operation: models.OperationUpdate})
	require.NoError(t, err)

	require.NoError(t, q.Ack(ctx, first.ID, 900))
	local, err := store.GetRecord(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.False(t, local.Synced, "an entry is still pending")

	rebased, err := q.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), rebased.BaseUpdatedAt)

	require.NoError(t, q.Ack(ctx, second.ID, 950))
	local, err = store.GetRecord(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.True(t, local.Synced)
	assert.Equal(t, int64(950), local.RemoteUpdatedAt)
}

func TestQueue_MarkFailedBackoff(t *testing.T) {
	ctx := context.Background()
	q, _, clk := newTestQueue(t, WithBackoff(time.Second, 5*time.Second))

	entry, err := q.Enqueue(ctx, Mutation{Record: testRecord("p-1"), Operation: models.OperationInsert})
	require.NoError(t, err)

	var delays []int64
	for i := 0; i < 4; i++ {
		updated, err := q.MarkFailed(ctx, entry.ID, errors.New("timeout"))
		require.NoError(t, err)
		assert.Equal(t, i+1, updated.RetryCount)
		assert.Equal(t, "timeout", updated.Error)
		delays = append(delays, updated.NextRetryAt-clk.now)
	}
	// 1s, 2s, 4s, затем ограничение 5s
	assert.Equal(t, []int64{1000, 2000, 4000, 5000}, delays)

	got, err := q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Eligible(clk.now))

	require.NoError(t, q.Retry(ctx, entry.ID))
	got, err = q.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.Eligible(clk.now))
	assert.Equal(t, 4, got.RetryCount, "manual retry keeps the visible counter")
}

func TestQueue_MarkFailedAfterAck(t *testing.T) {
	ctx := context.Background()
	q, store, _ := newTestQueue(t)

	entry, err := q.EnqueueRecord(ctx, Mutation{Record: testRecord("p-1"), Operation: models.OperationInsert})
	require.NoError(t, err)

	// запись подтверждена, пока отправитель еще обрабатывал ошибку
	require.NoError(t, q.Ack(ctx, entry.ID, 900))

	_, err = q.MarkFailed(ctx, entry.ID, errors.New("timeout"))
	assert.ErrorIs(t, err, storage.ErrEntryNotFound)
	_, err = q.MarkRejected(ctx, entry.ID, errors.New("rejected"))
	assert.ErrorIs(t, err, storage.ErrEntryNotFound)
	assert.ErrorIs(t, q.Retry(ctx, entry.ID), storage.ErrEntryNotFound)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	local, err := store.GetRecord(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.True(t, local.Synced)
}

func TestQueue_Delay(t *testing.T) {
	q, _, _ := newTestQueue(t)

	assert.Zero(t, q.Delay(0))
	assert.Equal(t, 30*time.Second, q.Delay(1))
	assert.Equal(t, 60*time.Second, q.Delay(2))
	assert.Equal(t, time.Hour, q.Delay(100))
}

func TestQueue_RejectedAndStats(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t)

	a, err := q.Enqueue(ctx, Mutation{Record: testRecord("p-1"), Operation: models.OperationInsert})
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, Mutation{Record: testRecord("p-2"), Operation: models.OperationUpdate, Priority: models.PriorityHigh})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Mutation{Record: &models.Record{ID: "c-1", Table: models.TableConsultations}, Operation: models.OperationDelete})
	require.NoError(t, err)

	_, err = q.MarkRejected(ctx, a.ID, errors.New("validation failed"))
	require.NoError(t, err)
	_, err = q.MarkFailed(ctx, b.ID, errors.New("server error"))
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByTable[models.TablePatients])
	assert.Equal(t, 1, stats.ByTable[models.TableConsultations])
	assert.Equal(t, 1, stats.ByOperation[models.OperationDelete])
	assert.Equal(t, 1, stats.ByPriority[models.PriorityHigh])
	assert.Equal(t, 2, stats.ByPriority[models.PriorityNormal])
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.BackingOff)

	n, err := q.RetryAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Rejected)
	assert.Zero(t, stats.BackingOff)
}

func TestQueue_RemoveClearAndListeners(t *testing.T) {
	ctx := context.Background()
	q, store, _ := newTestQueue(t)

	var changes int
	unsubscribe := q.OnChange(func() { changes++ })

	rec := testRecord("p-1")
	rec.Synced = true
	_, err := store.SaveRecord(ctx, rec)
	require.NoError(t, err)

	e, err := q.Enqueue(ctx, Mutation{Record: rec, Operation: models.OperationUpdate})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Mutation{Record: testRecord("p-2"), Operation: models.OperationInsert})
	require.NoError(t, err)
	assert.Equal(t, 2, changes)

	require.NoError(t, q.Remove(ctx, e.ID))
	assert.ErrorIs(t, q.Remove(ctx, e.ID), storage.ErrEntryNotFound)
	assert.Equal(t, 3, changes)

	n, err := q.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, changes)

	// Clear не трогает флаги synced
	local, err := store.GetRecord(ctx, models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.True(t, local.Synced)

	unsubscribe()
	_, err = q.Enqueue(ctx, Mutation{Record: testRecord("p-3"), Operation: models.OperationInsert})
	require.NoError(t, err)
	assert.Equal(t, 4, changes)
}

func TestSortEntries(t *testing.T) {
	entries := []*models.QueueEntry{
		{ID: "b", Priority: models.PriorityNormal, Timestamp: 10},
		{ID: "a", Priority: models.PriorityNormal, Timestamp: 10},
		{ID: "c", Priority: models.PriorityLow, Timestamp: 1},
		{ID: "d", Priority: models.PriorityMedium, Timestamp: 50},
	}
	SortEntries(entries)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

var _ clock.Clock = (*stepClock)(nil)
