package repository

import (
	"context"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/models"
)

// Capabilities - все, что репозиторий умеет делать с коллекцией.
// Ветвление online/offline живет в Repository, а не здесь.
type Capabilities interface {
	// Table returns the collection served.
	Table() models.Table
	// FetchRemote lists the remote records of a scope (and parent, if set).
	FetchRemote(ctx context.Context, scopeID, parentID string) ([]*models.Record, error)
	// FetchRemoteByID returns one remote record.
	FetchRemoteByID(ctx context.Context, id string) (*models.Record, error)
	// WriteRemote applies op remotely and returns the acknowledged version (nil for DELETE).
	WriteRemote(ctx context.Context, op models.Operation, rec *models.Record, baseUpdatedAt int64) (*models.Record, error)
	// CacheLocal writes remote versions through to the local store and returns the local views.
	CacheLocal(ctx context.Context, remote []*models.Record) ([]*models.Record, error)
}

// Cacher is the write-through side of cache.Cache.
type Cacher interface {
	RefreshAll(ctx context.Context, remote []*models.Record) ([]*models.Record, int, error)
}

// RemoteCapabilities реализует Capabilities поверх api.Remote и кэша
type RemoteCapabilities struct {
	remote api.Remote
	cache  Cacher
	table  models.Table
	limit  int
}

// NewRemoteCapabilities creates capabilities for one collection. A positive limit
// caps the number of records fetched by FetchRemote.
func NewRemoteCapabilities(table models.Table, remote api.Remote, cache Cacher, limit int) *RemoteCapabilities {
	return &RemoteCapabilities{table: table, remote: remote, cache: cache, limit: limit}
}

// Table implements Capabilities.
func (c *RemoteCapabilities) Table() models.Table { return c.table }

// FetchRemote implements Capabilities.
func (c *RemoteCapabilities) FetchRemote(ctx context.Context, scopeID, parentID string) ([]*models.Record, error) {
	return c.remote.List(ctx, c.table, api.Query{ScopeID: scopeID, ParentID: parentID, Limit: c.limit})
}

// FetchRemoteByID implements Capabilities.
func (c *RemoteCapabilities) FetchRemoteByID(ctx context.Context, id string) (*models.Record, error) {
	return c.remote.Get(ctx, c.table, id)
}

// WriteRemote implements Capabilities.
func (c *RemoteCapabilities) WriteRemote(ctx context.Context, op models.Operation, rec *models.Record, baseUpdatedAt int64) (*models.Record, error) {
	switch op {
	case models.OperationInsert:
		return c.remote.Insert(ctx, rec)
	case models.OperationUpdate:
		return c.remote.Update(ctx, rec, baseUpdatedAt)
	default:
		return nil, c.remote.Delete(ctx, c.table, rec.ID)
	}
}

// CacheLocal implements Capabilities.
func (c *RemoteCapabilities) CacheLocal(ctx context.Context, remote []*models.Record) ([]*models.Record, error) {
	local, _, err := c.cache.RefreshAll(ctx, remote)
	return local, err
}
