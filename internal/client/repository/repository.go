// Package repository presents per-entity CRUD over the offline cache, the sync
// queue and the remote system, hiding the online/offline branch from callers.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/client/queue"
	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/models"
)

var (
	// ErrNotDraft возвращается FinalizeDraft и DeleteDraft для обычной записи
	ErrNotDraft = errors.New("record is not a draft")
	// ErrInvalid оборачивает ошибки проверки payload
	ErrInvalid = errors.New("invalid record")
)

// Queue is the subset of queue.Queue used by repositories.
type Queue interface {
	EnqueueRecord(ctx context.Context, m queue.Mutation) (*models.QueueEntry, error)
	MarkRejected(ctx context.Context, id string, cause error) (*models.QueueEntry, error)
	HasPending(ctx context.Context, table models.Table, id string) (bool, error)
}

// Connectivity is the read side of network.Monitor.
type Connectivity interface {
	IsOnline() bool
}

// Deps - общие зависимости всех репозиториев
type Deps struct {
	Store   storage.RecordStorage
	Queue   Queue
	Remote  api.Remote
	Cache   Cacher
	Monitor Connectivity
	Clock   clock.Clock
	Logger  *slog.Logger
	UserID  string // автор изменений, попадает в записи очереди
	Limit   int    // максимум записей, загружаемых Load с сервера
}

// Entity - запись вместе с разобранным payload
type Entity[T any] struct {
	Value  T
	Record *models.Record
}

// ID returns the record id, empty for a new entity.
func (e *Entity[T]) ID() string {
	if e.Record == nil {
		return ""
	}
	return e.Record.ID
}

// Codec связывает тип payload с его проверкой и родителем
type Codec[T any] struct {
	Validate func(*T) error
	Parent   func(*T) string // пациент, к которому относится запись
}

// SaveOption tunes a single Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	priority models.Priority
	explicit bool
}

// WithPriority задает приоритет записи очереди, если сохранение уйдет через очередь
func WithPriority(p models.Priority) SaveOption {
	return func(o *saveOptions) {
		o.priority = p
		o.explicit = true
	}
}

// Repository - обобщенный репозиторий сущности
type Repository[T any] struct {
	caps    Capabilities
	codec   Codec[T]
	deps    Deps
	working map[string]*Entity[T]
	writes  keyedMutex
	mu      sync.RWMutex
}

// New creates a repository over caps.
func New[T any](caps Capabilities, codec Codec[T], deps Deps) *Repository[T] {
	return &Repository[T]{
		caps:    caps,
		codec:   codec,
		deps:    deps,
		working: make(map[string]*Entity[T]),
	}
}

// Table returns the collection served by the repository.
func (r *Repository[T]) Table() models.Table {
	return r.caps.Table()
}

// Load заполняет рабочий набор. Онлайн - с сервера с записью в кэш, офлайн или при
// ошибке сервера - из локального хранилища. Ошибка сервера не возвращается.
func (r *Repository[T]) Load(ctx context.Context, scopeID, parentID string) ([]*Entity[T], error) {
	table := r.caps.Table()

	if r.deps.Monitor.IsOnline() {
		remote, err := r.caps.FetchRemote(ctx, scopeID, parentID)
		switch {
		case err == nil:
			if _, err := r.caps.CacheLocal(ctx, remote); err != nil {
				return nil, fmt.Errorf("failed to cache %s: %w", table, err)
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			r.deps.Logger.Warn("Remote load failed, serving cached data",
				"table", table,
				"scope_id", scopeID,
				"parent_id", parentID,
				slog.Any("error", err),
			)
		}
	}

	records, err := r.listLocal(ctx, scopeID, parentID)
	if err != nil {
		return nil, err
	}

	entities := r.decodeAll(records)

	r.mu.Lock()
	r.working = make(map[string]*Entity[T], len(entities))
	for _, e := range entities {
		r.working[e.Record.ID] = e
	}
	r.mu.Unlock()

	return entities, nil
}

// Working returns the entities of the last Load, most recently updated first.
func (r *Repository[T]) Working() []*Entity[T] {
	r.mu.RLock()
	out := make([]*Entity[T], 0, len(r.working))
	for _, e := range r.working {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sortEntities(out)
	return out
}

// GetByID возвращает запись: онлайн - с сервера (с записью в кэш), при любой
// ошибке сервера или офлайн - последнюю кэшированную версию.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (*Entity[T], error) {
	table := r.caps.Table()

	if r.deps.Monitor.IsOnline() {
		remote, err := r.caps.FetchRemoteByID(ctx, id)
		if err == nil {
			local, err := r.caps.CacheLocal(ctx, []*models.Record{remote})
			if err != nil {
				return nil, fmt.Errorf("failed to cache %s: %w", models.EntityKey(table, id), err)
			}
			if len(local) == 0 {
				// удалена локально, удаление еще не отправлено
				return nil, fmt.Errorf("%s: %w", models.EntityKey(table, id), storage.ErrRecordNotFound)
			}
			return r.remember(r.decode(local[0]))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.deps.Logger.Warn("Remote get failed, serving cached data",
			"table", table,
			"id", id,
			slog.Any("error", err),
		)
	}

	rec, err := r.deps.Store.GetRecord(ctx, table, id)
	if err != nil {
		return nil, err
	}
	return r.remember(r.decode(rec))
}

// Save сохраняет сущность. Черновик пишется только локально. Онлайн, при известной
// больнице и пустой очереди сущности запись уходит на сервер напрямую, иначе -
// локально с постановкой в очередь. Ни одна запись пользователя не теряется:
// при сбое сети возвращается nil, при отказе сервера запись остается в очереди
// с отметкой rejected, а ошибка возвращается.
func (r *Repository[T]) Save(ctx context.Context, e *Entity[T], scopeID string, opts ...SaveOption) (*Entity[T], error) {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	table := r.caps.Table()
	draft := e.Record != nil && e.Record.IsDraft

	if !draft && r.codec.Validate != nil {
		if err := r.codec.Validate(&e.Value); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	id := e.ID()
	if id == "" {
		id = uuid.NewString()
	}

	unlock := r.writes.lock(id)
	defer unlock()

	existing, err := r.deps.Store.GetRecord(ctx, table, id)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read %s: %w", models.EntityKey(table, id), err)
	}

	data, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", table, err)
	}

	rec := &models.Record{
		ID:        id,
		Table:     table,
		ScopeID:   scopeID,
		Data:      data,
		UpdatedAt: r.deps.Clock.Now(),
		IsDraft:   draft,
	}
	if r.codec.Parent != nil {
		rec.ParentID = r.codec.Parent(&e.Value)
	}
	if existing != nil {
		rec.RemoteUpdatedAt = existing.RemoteUpdatedAt
		if rec.ScopeID == "" {
			rec.ScopeID = existing.ScopeID
		}
	}

	if draft {
		if _, err := r.deps.Store.SaveRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save draft %s: %w", rec.ID, err)
		}
		r.deps.Logger.Debug("Draft saved", "table", table, "id", rec.ID)
		return r.remember(&Entity[T]{Value: e.Value, Record: rec}, nil)
	}

	op := models.OperationUpdate
	if rec.RemoteUpdatedAt == 0 {
		// Сервер эту запись еще не видел
		op = models.OperationInsert
	}

	direct, err := r.canWriteDirect(ctx, rec, scopeID)
	if err != nil {
		return nil, err
	}
	if direct {
		stored, err := r.caps.WriteRemote(ctx, op, rec, rec.ConflictBase())
		if op == models.OperationUpdate && errors.Is(err, api.ErrNotFound) {
			// На сервере записи нет - создаем ее, как это делает синхронизация
			op = models.OperationInsert
			stored, err = r.caps.WriteRemote(ctx, op, rec, 0)
		}
		if err == nil {
			mirror, err := r.mirror(ctx, stored)
			if err != nil {
				return nil, err
			}
			return r.remember(&Entity[T]{Value: e.Value, Record: mirror}, nil)
		}
		return r.writeLocal(ctx, e.Value, rec, op, o, err)
	}

	return r.writeLocal(ctx, e.Value, rec, op, o, nil)
}

// FinalizeDraft снимает отметку черновика и сохраняет запись обычным путем
func (r *Repository[T]) FinalizeDraft(ctx context.Context, id, scopeID string, opts ...SaveOption) (*Entity[T], error) {
	rec, err := r.deps.Store.GetRecord(ctx, r.caps.Table(), id)
	if err != nil {
		return nil, err
	}
	if !rec.IsDraft {
		return nil, fmt.Errorf("%w: %s", ErrNotDraft, models.EntityKey(rec.Table, id))
	}

	e, err := r.decode(rec)
	if err != nil {
		return nil, err
	}
	e.Record.IsDraft = false
	if scopeID == "" {
		scopeID = rec.ScopeID
	}
	return r.Save(ctx, e, scopeID, opts...)
}

// DeleteDraft удаляет черновик. Черновики не синхронизируются, очередь не затрагивается.
func (r *Repository[T]) DeleteDraft(ctx context.Context, id string) error {
	table := r.caps.Table()
	unlock := r.writes.lock(id)
	defer unlock()

	rec, err := r.deps.Store.GetRecord(ctx, table, id)
	if err != nil {
		return err
	}
	if !rec.IsDraft {
		return fmt.Errorf("%w: %s", ErrNotDraft, models.EntityKey(table, id))
	}
	if err := r.deps.Store.DeleteRecord(ctx, table, id); err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	r.forget(id)
	return nil
}

// Delete удаляет запись. Черновик удаляется локально; для остальных удаление
// идет на сервер напрямую или через очередь по тем же правилам, что и Save.
func (r *Repository[T]) Delete(ctx context.Context, id, scopeID string) error {
	table := r.caps.Table()

	rec, err := r.deps.Store.GetRecord(ctx, table, id)
	switch {
	case err == nil:
		if rec.IsDraft {
			return r.DeleteDraft(ctx, id)
		}
		if scopeID == "" {
			scopeID = rec.ScopeID
		}
	case errors.Is(err, storage.ErrRecordNotFound):
		rec = &models.Record{ID: id, Table: table, ScopeID: scopeID}
	default:
		return fmt.Errorf("failed to read %s: %w", models.EntityKey(table, id), err)
	}

	unlock := r.writes.lock(id)
	defer unlock()

	var zero T
	direct, err := r.canWriteDirect(ctx, rec, scopeID)
	if err != nil {
		return err
	}
	if direct {
		_, err := r.caps.WriteRemote(ctx, models.OperationDelete, rec, rec.ConflictBase())
		if err == nil {
			if err := r.deps.Store.DeleteRecord(ctx, table, id); err != nil {
				return fmt.Errorf("failed to delete %s locally: %w", models.EntityKey(table, id), err)
			}
			r.forget(id)
			return nil
		}
		_, err = r.writeLocal(ctx, zero, rec, models.OperationDelete, saveOptions{}, err)
		return err
	}

	_, err = r.writeLocal(ctx, zero, rec, models.OperationDelete, saveOptions{}, nil)
	return err
}

// Drafts returns the local drafts of a scope (all scopes when empty).
func (r *Repository[T]) Drafts(ctx context.Context, scopeID string) ([]*Entity[T], error) {
	records, err := r.deps.Store.ListByIndex(ctx, r.caps.Table(), storage.IndexDraft, "true")
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	if scopeID != "" {
		records = filterScope(records, scopeID)
	}
	return r.decodeAll(records), nil
}

// canWriteDirect: сеть есть, больница известна и у сущности нет мутаций в очереди
// (иначе прямая запись обогнала бы их)
func (r *Repository[T]) canWriteDirect(ctx context.Context, rec *models.Record, scopeID string) (bool, error) {
	if scopeID == "" || rec.IsDraft || !r.deps.Monitor.IsOnline() {
		return false, nil
	}
	pending, err := r.deps.Queue.HasPending(ctx, rec.Table, rec.ID)
	if err != nil {
		return false, err
	}
	return !pending, nil
}

// mirror сохраняет подтвержденную сервером версию как синхронизированную
func (r *Repository[T]) mirror(ctx context.Context, stored *models.Record) (*models.Record, error) {
	clock.Observe(r.deps.Clock, stored.UpdatedAt)

	local := stored.Clone()
	local.Synced = true
	local.IsDraft = false
	local.RemoteUpdatedAt = stored.UpdatedAt
	local.CachedAt = r.deps.Clock.Now()
	if _, err := r.deps.Store.SaveRecord(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to mirror %s: %w", models.EntityKey(local.Table, local.ID), err)
	}
	return local, nil
}

// writeLocal пишет локально и ставит мутацию в очередь. remoteErr - причина, по
// которой прямая запись не удалась (nil, если ее не пробовали).
func (r *Repository[T]) writeLocal(ctx context.Context, value T, rec *models.Record, op models.Operation, o saveOptions, remoteErr error) (*Entity[T], error) {
	m := queue.Mutation{Record: rec, UserID: r.deps.UserID, Operation: op}
	if o.explicit {
		m = m.WithPriority(o.priority)
	}

	entry, err := r.deps.Queue.EnqueueRecord(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s locally: %w", models.EntityKey(rec.Table, rec.ID), err)
	}

	if remoteErr != nil && rejected(remoteErr) {
		if _, err := r.deps.Queue.MarkRejected(ctx, entry.ID, remoteErr); err != nil {
			return nil, err
		}
		r.deps.Logger.Error("Remote rejected write, kept in queue",
			"table", rec.Table,
			"id", rec.ID,
			"operation", op,
			slog.Any("error", remoteErr),
		)
		if op == models.OperationDelete {
			r.forget(rec.ID)
		}
		return nil, remoteErr
	}

	if remoteErr != nil {
		r.deps.Logger.Warn("Remote write failed, queued for sync",
			"table", rec.Table,
			"id", rec.ID,
			"operation", op,
			slog.Any("error", remoteErr),
		)
	}

	if op == models.OperationDelete {
		r.forget(rec.ID)
		return nil, nil
	}

	local := rec.Clone()
	local.Synced = false
	return r.remember(&Entity[T]{Value: value, Record: local}, nil)
}

// rejected: окончательный отказ сервера. Конфликт версий сюда не относится -
// его обнаружит и сохранит синхронизация.
func rejected(err error) bool {
	if errors.Is(err, api.ErrStale) || errors.Is(err, api.ErrAlreadyExists) || errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	return api.IsRejection(err)
}

func (r *Repository[T]) listLocal(ctx context.Context, scopeID, parentID string) ([]*models.Record, error) {
	table := r.caps.Table()

	var (
		records []*models.Record
		err     error
	)
	switch {
	case parentID != "":
		records, err = r.deps.Store.ListByIndex(ctx, table, storage.IndexParent, parentID)
	case scopeID != "":
		records, err = r.deps.Store.ListByIndex(ctx, table, storage.IndexScope, scopeID)
	default:
		records, err = r.deps.Store.ListRecords(ctx, table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cached %s: %w", table, err)
	}

	if parentID != "" && scopeID != "" {
		records = filterScope(records, scopeID)
	}
	return records, nil
}

func (r *Repository[T]) decode(rec *models.Record) (*Entity[T], error) {
	e := &Entity[T]{Record: rec}
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", models.EntityKey(rec.Table, rec.ID), err)
		}
	}
	return e, nil
}

func (r *Repository[T]) decodeAll(records []*models.Record) []*Entity[T] {
	entities := make([]*Entity[T], 0, len(records))
	for _, rec := range records {
		e, err := r.decode(rec)
		if err != nil {
			r.deps.Logger.Warn("Skipping undecodable record", "id", rec.ID, slog.Any("error", err))
			continue
		}
		entities = append(entities, e)
	}
	sortEntities(entities)
	return entities
}

func (r *Repository[T]) remember(e *Entity[T], err error) (*Entity[T], error) {
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.working[e.Record.ID] = e
	r.mu.Unlock()
	return e, nil
}

func (r *Repository[T]) forget(id string) {
	r.mu.Lock()
	delete(r.working, id)
	r.mu.Unlock()
}

func filterScope(records []*models.Record, scopeID string) []*models.Record {
	out := records[:0]
	for _, rec := range records {
		if rec.ScopeID == scopeID {
			out = append(out, rec)
		}
	}
	return out
}

func sortEntities[T any](entities []*Entity[T]) {
	sort.Slice(entities, func(i, j int) bool {
		a, b := entities[i].Record, entities[j].Record
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.ID < b.ID
	})
}
