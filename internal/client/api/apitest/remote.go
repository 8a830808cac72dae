// Package apitest provides an in-memory Remote for tests of code built on
// top of the remote system of record.
package apitest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/models"
)

// Op names a Remote method in the call log
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call - одна запись журнала вызовов
type Call struct {
	Op    Op
	Table models.Table
	ID    string
}

// Remote - потокобезопасная in-memory реализация api.Remote с инъекцией ошибок
type Remote struct {
	records map[models.Table]map[string]*models.Record
	fail    map[failKey]error
	failAll error
	hooks   map[Op]func(Call)
	calls   []Call
	mu      sync.Mutex
}

type failKey struct {
	op Op
	id string
}

var _ api.Remote = (*Remote)(nil)

// New creates an empty Remote.
func New() *Remote {
	return &Remote{
		records: make(map[models.Table]map[string]*models.Record),
		fail:    make(map[failKey]error),
		hooks:   make(map[Op]func(Call)),
	}
}

// Seed кладет запись на "сервер" без записи в журнал вызовов,
// имитируя изменение другим пользователем.
func (r *Remote) Seed(rec *models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(rec)
}

// Record returns the stored copy or nil.
func (r *Remote) Record(table models.Table, id string) *models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[table][id]; ok {
		return rec.Clone()
	}
	return nil
}

// Len returns the number of stored records in table.
func (r *Remote) Len(table models.Table) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records[table])
}

// FailAll makes every call return err until reset with nil.
func (r *Remote) FailAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = err
}

// FailOn makes op on record id return err until reset with nil.
// Empty id matches any record.
func (r *Remote) FailOn(op Op, id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, failKey{op: op, id: id})
		return
	}
	r.fail[failKey{op: op, id: id}] = err
}

// OnCall registers fn to run after op is logged and before it executes.
// Used to change connectivity mid-batch.
func (r *Remote) OnCall(op Op, fn func(Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[op] = fn
}

// Calls returns a copy of the call log.
func (r *Remote) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CountCalls returns the number of logged calls of op.
func (r *Remote) CountCalls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (r *Remote) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Unavailable is a connectivity failure as returned by api.Client.
func Unavailable() error {
	return fmt.Errorf("%w: connection refused", api.ErrUnavailable)
}

// Rejected is a validation failure as returned by api.Client.
func Rejected(message string) error {
	return api.NewRemoteError(http.StatusUnprocessableEntity, message)
}

// ServerError is a 5xx response as returned by api.Client.
func ServerError() error {
	return api.NewRemoteError(http.StatusInternalServerError, "internal error")
}

func (r *Remote) enter(op Op, table models.Table, id string) error {
	call := Call{Op: op, Table: table, ID: id}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	hook := r.hooks[op]
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	if err, ok := r.fail[failKey{op: op, id: id}]; ok {
		return err
	}
	if err, ok := r.fail[failKey{op: op}]; ok {
		return err
	}
	return nil
}

func (r *Remote) put(rec *models.Record) *models.Record {
	stored := rec.Clone()
	stored.Synced = true
	stored.IsDraft = false
	stored.RemoteUpdatedAt = stored.UpdatedAt
	stored.CachedAt = 0

	if r.records[stored.Table] == nil {
		r.records[stored.Table] = make(map[string]*models.Record)
	}
	r.records[stored.Table][stored.ID] = stored
	return stored.Clone()
}

func (r *Remote) List(ctx context.Context, table models.Table, q api.Query) ([]*models.Record, error) {
	if err := r.enter(OpList, table, ""); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Record
	for _, rec := range r.records[table] {
		if q.ScopeID != "" && rec.ScopeID != q.ScopeID {
			continue
		}
		if q.ParentID != "" && rec.ParentID != q.ParentID {
			continue
		}
		if rec.UpdatedAt <= q.Since {
			continue
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *Remote) Get(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	if err := r.enter(OpGet, table, id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[table][id]
	if !ok {
		return nil, api.NewRemoteError(http.StatusNotFound, "record not found")
	}
	return rec.Clone(), nil
}

func (r *Remote) Insert(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if err := r.enter(OpInsert, rec.Table, rec.ID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.Table][rec.ID]; ok {
		e := api.NewRemoteError(http.StatusConflict, "record already exists")
		e.Kind = api.ErrAlreadyExists
		return nil, e
	}
	return r.put(rec), nil
}

func (r *Remote) Update(ctx context.Context, rec *models.Record, baseUpdatedAt int64) (*models.Record, error) {
	if err := r.enter(OpUpdate, rec.Table, rec.ID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.records[rec.Table][rec.ID]
	if !ok {
		return nil, api.NewRemoteError(http.StatusNotFound, "record not found")
	}
	if current.UpdatedAt > baseUpdatedAt {
		return nil, api.NewRemoteError(http.StatusConflict, "record modified concurrently")
	}
	return r.put(rec), nil
}

func (r *Remote) Delete(ctx context.Context, table models.Table, id string) error {
	if err := r.enter(OpDelete, table, id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records[table], id)
	return nil
}
