// Package queue implements the durable, ordered ledger of local mutations
// awaiting transmission to the remote system of record.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/models"
)

var (
	// ErrDraft возвращается при попытке поставить черновик в очередь
	ErrDraft = errors.New("drafts are never queued")
	// ErrInvalidPriority - приоритет вне допустимого диапазона
	ErrInvalidPriority = errors.New("invalid priority")
)

// Defaults for the retry schedule
const (
	DefaultBackoffBase = 30 * time.Second
	DefaultBackoffMax  = time.Hour
)

// Mutation описывает локальное изменение, которое нужно доставить на сервер
type Mutation struct {
	Record    *models.Record // снимок записи; для DELETE достаточно Table и ID
	UserID    string
	Operation models.Operation
	Priority  models.Priority // нулевое значение заменяется на PriorityDefault, см. WithPriority
	// explicitPriority отличает PriorityLow (0) от "не задан"
	explicitPriority bool
}

// WithPriority returns a copy of m with an explicit priority, including PriorityLow.
func (m Mutation) WithPriority(p models.Priority) Mutation {
	m.Priority = p
	m.explicitPriority = true
	return m
}

// Queue - очередь синхронизации поверх storage.QueueStorage
type Queue struct {
	store       storage.QueueStorage
	clock       clock.Clock
	logger      *slog.Logger
	listeners   map[int]func()
	backoffBase time.Duration
	backoffMax  time.Duration
	nextID      int
	mu          sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff задает параметры экспоненциальной задержки повторов
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(q *Queue) {
		if base > 0 {
			q.backoffBase = base
		}
		if maxDelay > 0 {
			q.backoffMax = maxDelay
		}
	}
}

// New creates a Queue.
func New(store storage.QueueStorage, clk clock.Clock, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:       store,
		clock:       clk,
		logger:      logger,
		listeners:   make(map[int]func()),
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// OnChange регистрирует функцию, вызываемую после каждого изменения очереди.
// Возвращает функцию отписки.
func (q *Queue) OnChange(fn func()) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := q.nextID
	q.listeners[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

func (q *Queue) changed() {
	q.mu.Lock()
	listeners := make([]func(), 0, len(q.listeners))
	for _, fn := range q.listeners {
		listeners = append(listeners, fn)
	}
	q.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Build проверяет мутацию и строит запись очереди, не сохраняя ее.
// BaseUpdatedAt фиксируется в момент постановки.
func (q *Queue) Build(m Mutation) (*models.QueueEntry, error) {
	rec := m.Record
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("mutation requires a record id")
	}
	if !rec.Table.Valid() {
		return nil, fmt.Errorf("unknown table %q", rec.Table)
	}
	if _, err := models.ParseOperation(string(m.Operation)); err != nil {
		return nil, err
	}
	if rec.IsDraft && m.Operation != models.OperationDelete {
		return nil, ErrDraft
	}

	priority := m.Priority
	if priority == models.PriorityLow && !m.explicitPriority {
		priority = models.PriorityDefault
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry id: %w", err)
	}

	var data json.RawMessage
	if m.Operation == models.OperationDelete {
		data, err = json.Marshal(map[string]string{"id": rec.ID})
	} else {
		snapshot := rec.Clone()
		snapshot.Synced = false
		data, err = json.Marshal(snapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mutation: %w", err)
	}

	return &models.QueueEntry{
		ID:            id.String(),
		Table:         rec.Table,
		Operation:     m.Operation,
		RecordID:      rec.ID,
		ScopeID:       rec.ScopeID,
		UserID:        m.UserID,
		Data:          data,
		Timestamp:     q.clock.Now(),
		BaseUpdatedAt: rec.ConflictBase(),
		Priority:      priority,
	}, nil
}

// Enqueue добавляет запись в очередь. Локальная запись не изменяется.
func (q *Queue) Enqueue(ctx context.Context, m Mutation) (*models.QueueEntry, error) {
	entry, err := q.Build(m)
	if err != nil {
		return nil, err
	}

	if err := q.store.PutEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s %s: %w", entry.Operation, entry.EntityKey(), err)
	}

	q.logger.Debug("Mutation enqueued",
		"entry_id", entry.ID,
		"table", entry.Table,
		"record_id", entry.RecordID,
		"operation", entry.Operation,
		"priority", entry.Priority,
	)
	q.changed()
	return entry, nil
}

// EnqueueRecord атомарно сохраняет локальную запись (или удаляет ее для DELETE)
// и ставит мутацию в очередь. Сохраненная запись помечается несинхронизированной.
func (q *Queue) EnqueueRecord(ctx context.Context, m Mutation) (*models.QueueEntry, error) {
	entry, err := q.Build(m)
	if err != nil {
		return nil, err
	}

	var local *models.Record
	if m.Operation != models.OperationDelete {
		local = m.Record.Clone()
		local.Synced = false
	}

	if err := q.store.PutEntryWithRecord(ctx, entry, local); err != nil {
		return nil, fmt.Errorf("failed to save and enqueue %s: %w", entry.EntityKey(), err)
	}

	q.logger.Debug("Local write enqueued",
		"entry_id", entry.ID,
		"table", entry.Table,
		"record_id", entry.RecordID,
		"operation", entry.Operation,
	)
	q.changed()
	return entry, nil
}

// Get returns one entry.
func (q *Queue) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	return q.store.GetEntry(ctx, id)
}

// ListOrdered возвращает записи в порядке отправки:
// приоритет по убыванию, затем время создания, затем id
func (q *Queue) ListOrdered(ctx context.Context) ([]*models.QueueEntry, error) {
	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	SortEntries(entries)
	return entries, nil
}

// SortEntries sorts entries in draining order.
func SortEntries(entries []*models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ID < b.ID
	})
}

// EntriesFor возвращает записи одной сущности в порядке создания
func (q *Queue) EntriesFor(ctx context.Context, table models.Table, id string) ([]*models.QueueEntry, error) {
	entries, err := q.store.ListEntriesForRecord(ctx, table, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for %s: %w", models.EntityKey(table, id), err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// HasPending reports whether the entity has queued mutations.
func (q *Queue) HasPending(ctx context.Context, table models.Table, id string) (bool, error) {
	entries, err := q.store.ListEntriesForRecord(ctx, table, id)
	if err != nil {
		return false, fmt.Errorf("failed to check pending entries: %w", err)
	}
	return len(entries) > 0, nil
}

// Len returns the queue length.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.CountEntries(ctx)
}

// Remove удаляет запись вручную (администратор). Флаги synced не меняются.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("failed to remove entry %s: %w", id, err)
	}
	q.logger.Info("Queue entry removed", "entry_id", id)
	q.changed()
	return nil
}

// Ack удаляет подтвержденную сервером запись и отмечает локальную запись синхронизированной
func (q *Queue) Ack(ctx context.Context, id string, remoteUpdatedAt int64) error {
	if err := q.store.AckEntry(ctx, id, remoteUpdatedAt); err != nil {
		return fmt.Errorf("failed to acknowledge entry %s: %w", id, err)
	}
	q.changed()
	return nil
}

// Clear удаляет все записи очереди
func (q *Queue) Clear(ctx context.Context) (int, error) {
	n, err := q.store.ClearEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	q.logger.Warn("Sync queue cleared", "removed", n)
	q.changed()
	return n, nil
}

// UpdatePriority меняет приоритет записи; позиция меняется только пересортировкой
func (q *Queue) UpdatePriority(ctx context.Context, id string, p models.Priority) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, p)
	}
	return q.modify(ctx, id, func(e *models.QueueEntry) {
		e.Priority = p
	})
}

// MarkFailed увеличивает счетчик попыток, сохраняет текст ошибки
// и откладывает следующую автоматическую попытку по экспоненте.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) (*models.QueueEntry, error) {
	var updated *models.QueueEntry
	err := q.modify(ctx, id, func(e *models.QueueEntry) {
		e.RetryCount++
		e.Error = cause.Error()
		e.NextRetryAt = q.clock.Now() + q.Delay(e.RetryCount).Milliseconds()
		updated = e
	})
	if err != nil {
		return nil, err
	}
	q.logger.Warn("Queue entry retry scheduled",
		"entry_id", id,
		"retry_count", updated.RetryCount,
		"next_retry_at", time.UnixMilli(updated.NextRetryAt),
		slog.Any("error", cause),
	)
	return updated, nil
}

// MarkRejected отмечает запись, окончательно отклоненную сервером.
// Автоматическая синхронизация ее пропускает до ручного Retry.
func (q *Queue) MarkRejected(ctx context.Context, id string, cause error) (*models.QueueEntry, error) {
	var updated *models.QueueEntry
	err := q.modify(ctx, id, func(e *models.QueueEntry) {
		e.RetryCount++
		e.Error = cause.Error()
		e.Rejected = true
		updated = e
	})
	if err != nil {
		return nil, err
	}
	q.logger.Error("Queue entry rejected by server", "entry_id", id, slog.Any("error", cause))
	return updated, nil
}

// Retry снимает отметку отклонения и задержку, счетчик попыток сохраняется
func (q *Queue) Retry(ctx context.Context, id string) error {
	return q.modify(ctx, id, func(e *models.QueueEntry) {
		e.Rejected = false
		e.NextRetryAt = 0
	})
}

// RetryAll resets every rejected or backing-off entry and returns how many changed.
func (q *Queue) RetryAll(ctx context.Context) (int, error) {
	entries, err := q.store.ListEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}

	n := 0
	for _, e := range entries {
		if !e.Rejected && e.NextRetryAt == 0 {
			continue
		}
		e.Rejected = false
		e.NextRetryAt = 0
		if err := q.store.PutEntry(ctx, e); err != nil {
			return n, fmt.Errorf("failed to reset entry %s: %w", e.ID, err)
		}
		n++
	}
	if n > 0 {
		q.changed()
	}
	return n, nil
}

// Stats считает статистику по текущему содержимому очереди
func (q *Queue) Stats(ctx context.Context) (*models.QueueStats, error) {
	entries, err := q.ListOrdered(ctx)
	if err != nil {
		return nil, err
	}

	now := q.clock.Now()
	stats := models.NewQueueStats()
	for _, e := range entries {
		stats.Total++
		stats.ByTable[e.Table]++
		stats.ByOperation[e.Operation]++
		stats.ByPriority[e.Priority]++
		if e.RetryCount > 0 {
			stats.Failed++
		}
		if e.Rejected {
			stats.Rejected++
		} else if e.NextRetryAt > now {
			stats.BackingOff++
		}
	}
	return stats, nil
}

// Delay returns the wait before retry number retryCount (1-based).
func (q *Queue) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		return 0
	}
	b := retry.WithCappedDuration(q.backoffMax, retry.NewExponential(q.backoffBase))

	var d time.Duration
	for i := 0; i < retryCount; i++ {
		d, _ = b.Next()
		if d >= q.backoffMax {
			return q.backoffMax
		}
	}
	return d
}

// modify меняет запись атомарно: запись, удаленная параллельным Ack или Remove,
// не возвращается в очередь.
func (q *Queue) modify(ctx context.Context, id string, fn func(e *models.QueueEntry)) error {
	_, err := q.store.UpdateEntry(ctx, id, func(e *models.QueueEntry) error {
		fn(e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update entry %s: %w", id, err)
	}
	q.changed()
	return nil
}
