// Package cache keeps a local mirror of remote entities in the durable store
// so the client stays usable without connectivity.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/models"
)

// Defaults
const (
	DefaultRetention          = 7 * 24 * time.Hour
	DefaultEssentialLimit     = 500
	DefaultPrescriptionWindow = 30 * 24 * time.Hour
)

// Store - часть локального хранилища, которой пользуется кэш
type Store interface {
	storage.RecordStorage
	storage.MetadataStorage
}

// Pending сообщает, есть ли у сущности неотправленные мутации
type Pending interface {
	HasPending(ctx context.Context, table models.Table, id string) (bool, error)
}

// Connectivity is the read side of network.Monitor.
type Connectivity interface {
	IsOnline() bool
}

// Config параметры кэша
type Config struct {
	Retention          time.Duration // записи старше удаляются CleanExpiredCache
	PrescriptionWindow time.Duration // рецепты, измененные за этот период, входят в essential data
	EssentialLimit     int           // максимум записей каждой таблицы в essential data
}

func (c *Config) setDefaults() {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.PrescriptionWindow <= 0 {
		c.PrescriptionWindow = DefaultPrescriptionWindow
	}
	if c.EssentialLimit <= 0 {
		c.EssentialLimit = DefaultEssentialLimit
	}
}

// EssentialResult counts what CacheEssentialData stored.
type EssentialResult struct {
	Patients      int
	Consultations int
	Prescriptions int
	Skipped       int // локальные версии с неотправленными изменениями остались как есть
}

// Cache - read-through/write-through кэш поверх локального хранилища
type Cache struct {
	store   Store
	pending Pending
	remote  api.Remote
	monitor Connectivity
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config
}

// New creates a Cache.
func New(store Store, pending Pending, remote api.Remote, monitor Connectivity, clk clock.Clock, logger *slog.Logger, cfg Config) *Cache {
	cfg.setDefaults()
	return &Cache{
		store:   store,
		pending: pending,
		remote:  remote,
		monitor: monitor,
		clock:   clk,
		logger:  logger,
		cfg:     cfg,
	}
}

// Refresh записывает удаленную версию в локальное хранилище (write-through).
// Локальная запись с неотправленными изменениями или черновик не перезаписываются:
// в этом случае возвращается локальная версия и stored == false.
// Запись с мутацией в очереди тоже не трогаем; если локальной копии нет
// (удалена офлайн), rec == nil.
func (c *Cache) Refresh(ctx context.Context, remote *models.Record) (rec *models.Record, stored bool, err error) {
	clock.Observe(c.clock, remote.UpdatedAt)

	local, err := c.store.GetRecord(ctx, remote.Table, remote.ID)
	switch {
	case err == nil:
		if local.HasLocalChanges() {
			return local, false, nil
		}
	case errors.Is(err, storage.ErrRecordNotFound):
	default:
		return nil, false, fmt.Errorf("failed to read cached %s: %w", models.EntityKey(remote.Table, remote.ID), err)
	}

	pending, err := c.pending.HasPending(ctx, remote.Table, remote.ID)
	if err != nil {
		return nil, false, err
	}
	if pending {
		return local, false, nil
	}

	fresh := remote.Clone()
	fresh.Synced = true
	fresh.IsDraft = false
	fresh.RemoteUpdatedAt = remote.UpdatedAt
	fresh.CachedAt = c.clock.Now()

	if _, err := c.store.SaveRecord(ctx, fresh); err != nil {
		return nil, false, fmt.Errorf("failed to cache %s: %w", models.EntityKey(remote.Table, remote.ID), err)
	}
	return fresh, true, nil
}

// RefreshAll applies Refresh to every record and returns the local views.
// Records deleted locally and still queued have no view and are left out.
func (c *Cache) RefreshAll(ctx context.Context, remote []*models.Record) ([]*models.Record, int, error) {
	out := make([]*models.Record, 0, len(remote))
	skipped := 0
	for _, r := range remote {
		rec, stored, err := c.Refresh(ctx, r)
		if err != nil {
			return nil, skipped, err
		}
		if !stored {
			skipped++
		}
		if rec == nil {
			continue
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

// CacheEssentialData загружает рабочий набор больницы: активных пациентов,
// консультации на сегодня и недавние рецепты. Таблицы загружаются параллельно.
func (c *Cache) CacheEssentialData(ctx context.Context, scopeID string) (*EssentialResult, error) {
	if !c.monitor.IsOnline() {
		return nil, network.ErrOffline
	}
	if scopeID == "" {
		return nil, fmt.Errorf("scope id is required")
	}

	now := time.UnixMilli(c.clock.Now())
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var (
		patients, consultations, prescriptions []*models.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := c.remote.List(gctx, models.TablePatients, api.Query{ScopeID: scopeID, Limit: c.cfg.EssentialLimit})
		if err != nil {
			return fmt.Errorf("failed to fetch patients: %w", err)
		}
		patients = filter(list, activePatient)
		return nil
	})
	g.Go(func() error {
		list, err := c.remote.List(gctx, models.TableConsultations, api.Query{ScopeID: scopeID, Limit: c.cfg.EssentialLimit})
		if err != nil {
			return fmt.Errorf("failed to fetch consultations: %w", err)
		}
		consultations = filter(list, scheduledBetween(dayStart.UnixMilli(), dayEnd.UnixMilli()))
		return nil
	})
	g.Go(func() error {
		since := now.Add(-c.cfg.PrescriptionWindow).UnixMilli()
		list, err := c.remote.List(gctx, models.TablePrescriptions, api.Query{ScopeID: scopeID, Since: since, Limit: c.cfg.EssentialLimit})
		if err != nil {
			return fmt.Errorf("failed to fetch prescriptions: %w", err)
		}
		prescriptions = list
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("Failed to cache essential data", "scope_id", scopeID, slog.Any("error", err))
		return nil, err
	}

	result := &EssentialResult{}
	for _, set := range []struct {
		count   *int
		records []*models.Record
	}{
		{&result.Patients, patients},
		{&result.Consultations, consultations},
		{&result.Prescriptions, prescriptions},
	} {
		_, skipped, err := c.RefreshAll(ctx, set.records)
		if err != nil {
			return nil, err
		}
		*set.count = len(set.records) - skipped
		result.Skipped += skipped
	}

	if err := c.store.SaveLastCacheTimestamp(ctx, c.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to save cache timestamp: %w", err)
	}

	c.logger.Info("Essential data cached",
		"scope_id", scopeID,
		"patients", result.Patients,
		"consultations", result.Consultations,
		"prescriptions", result.Prescriptions,
		"skipped", result.Skipped,
	)
	return result, nil
}

// CacheRecord загружает одну запись с сервера в кэш
func (c *Cache) CacheRecord(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	if !c.monitor.IsOnline() {
		return nil, network.ErrOffline
	}

	remote, err := c.remote.Get(ctx, table, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", models.EntityKey(table, id), err)
	}

	rec, _, err := c.Refresh(ctx, remote)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// удалена локально, удаление еще в очереди
		return nil, fmt.Errorf("%s is deleted locally: %w", models.EntityKey(table, id), storage.ErrRecordNotFound)
	}
	return rec, nil
}

func (c *Cache) CachePatient(ctx context.Context, id string) (*models.Record, error) {
	return c.CacheRecord(ctx, models.TablePatients, id)
}

func (c *Cache) CacheConsultation(ctx context.Context, id string) (*models.Record, error) {
	return c.CacheRecord(ctx, models.TableConsultations, id)
}

func (c *Cache) CachePrescription(ctx context.Context, id string) (*models.Record, error) {
	return c.CacheRecord(ctx, models.TablePrescriptions, id)
}

// GetCacheStats считает статистику только по локальному хранилищу, без сети
func (c *Cache) GetCacheStats(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{}
	for _, table := range models.Tables() {
		ts, err := c.store.TableStats(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s stats: %w", table, err)
		}
		switch table {
		case models.TablePatients:
			stats.Patients = ts.Count
		case models.TableConsultations:
			stats.Consultations = ts.Count
		case models.TablePrescriptions:
			stats.Prescriptions = ts.Count
		}
		stats.Drafts += ts.Drafts
		stats.Unsynced += ts.Unsynced
		stats.SizeBytes += ts.Bytes
	}

	last, err := c.store.GetLastCacheTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache timestamp: %w", err)
	}
	stats.LastCachedAt = last
	return stats, nil
}

// CleanExpiredCache удаляет записи старше Retention. Записи с неотправленными
// изменениями, черновики и записи с мутациями в очереди не удаляются никогда.
func (c *Cache) CleanExpiredCache(ctx context.Context) (int, error) {
	cutoff := c.clock.Now() - c.cfg.Retention.Milliseconds()

	removed := 0
	for _, table := range models.Tables() {
		synced, err := c.store.ListByIndex(ctx, table, storage.IndexSynced, "true")
		if err != nil {
			return removed, fmt.Errorf("failed to list cached %s: %w", table, err)
		}

		for _, rec := range synced {
			if rec.HasLocalChanges() || freshness(rec) > cutoff {
				continue
			}

			pending, err := c.pending.HasPending(ctx, table, rec.ID)
			if err != nil {
				return removed, err
			}
			if pending {
				continue
			}

			if err := c.store.DeleteRecord(ctx, table, rec.ID); err != nil {
				return removed, fmt.Errorf("failed to evict %s: %w", models.EntityKey(table, rec.ID), err)
			}
			removed++
		}
	}

	c.logger.Info("Expired cache cleaned", "removed", removed, "retention", c.cfg.Retention)
	return removed, nil
}

// freshness - когда запись последний раз подтверждалась сервером или менялась локально
func freshness(rec *models.Record) int64 {
	return max(rec.CachedAt, rec.UpdatedAt)
}

func filter(records []*models.Record, keep func(*models.Record) bool) []*models.Record {
	out := records[:0]
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func activePatient(r *models.Record) bool {
	var p models.Patient
	if err := json.Unmarshal(r.Data, &p); err != nil {
		return false
	}
	return p.Active
}

func scheduledBetween(from, to int64) func(*models.Record) bool {
	return func(r *models.Record) bool {
		var c models.Consultation
		if err := json.Unmarshal(r.Data, &c); err != nil {
			return false
		}
		return c.ScheduledAt >= from && c.ScheduledAt < to
	}
}
