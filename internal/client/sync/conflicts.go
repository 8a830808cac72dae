package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/medsync/internal/client/queue"
	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/models"
)

// ListConflicts returns every open conflict.
func (s *Service) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	conflicts, err := s.store.ListConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	return conflicts, nil
}

// GetConflict returns the open conflict for key ("<table>/<id>").
func (s *Service) GetConflict(ctx context.Context, key string) (*models.Conflict, error) {
	return s.store.GetConflict(ctx, key)
}

// ResolveConflict применяет решение пользователя. Конфликт и все старые мутации
// сущности заменяются одной транзакцией; новая мутация уйдет при следующей синхронизации.
func (s *Service) ResolveConflict(ctx context.Context, key string, res models.Resolution) error {
	c, err := s.store.GetConflict(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get conflict %s: %w", key, err)
	}
	if err := s.resolve(ctx, c, res); err != nil {
		return err
	}
	s.logger.Info("Conflict resolved", "key", key, "strategy", res.Strategy)
	return nil
}

func (s *Service) resolve(ctx context.Context, c *models.Conflict, res models.Resolution) error {
	if err := res.Validate(); err != nil {
		return err
	}

	// Новая локальная версия должна быть новее увиденной серверной
	clock.Observe(s.clock, c.RemoteUpdatedAt())

	// Автор и приоритет берутся из мутации, на которой обнаружен конфликт
	var (
		userID   string
		priority = models.PriorityDefault
	)
	if origin, err := s.queue.Get(ctx, c.EntryID); err == nil {
		userID = origin.UserID
		priority = origin.Priority
	} else if !errors.Is(err, storage.ErrEntryNotFound) {
		return fmt.Errorf("failed to get conflicting entry: %w", err)
	}

	var (
		rec   *models.Record
		entry *models.QueueEntry
		err   error
	)

	switch res.Strategy {
	case models.KeepRemote:
		if c.Remote == nil {
			return fmt.Errorf("conflict %s has no remote version", c.Key)
		}
		rec = c.Remote.Clone()
		rec.IsDraft = false
		rec.Synced = true
		rec.RemoteUpdatedAt = rec.UpdatedAt
		rec.CachedAt = s.clock.Now()

	case models.KeepLocal:
		local, getErr := s.store.GetRecord(ctx, c.Table, c.RecordID)
		switch {
		case errors.Is(getErr, storage.ErrRecordNotFound):
			// Локально запись удалена: побеждает удаление
			entry, err = s.queue.Build(queue.Mutation{
				Record:    &models.Record{ID: c.RecordID, Table: c.Table, ScopeID: scopeOf(c)},
				UserID:    userID,
				Operation: models.OperationDelete,
			}.WithPriority(priority))
		case getErr != nil:
			return fmt.Errorf("failed to get local record: %w", getErr)
		default:
			rec = local.Clone()
			rec.UpdatedAt = s.clock.Now()
			rec.RemoteUpdatedAt = c.RemoteUpdatedAt()
			rec.Synced = false
			if !rec.IsDraft {
				entry, err = s.queue.Build(queue.Mutation{
					Record:    rec,
					UserID:    userID,
					Operation: models.OperationUpdate,
				}.WithPriority(priority))
			}
		}

	case models.Merged:
		base, getErr := s.store.GetRecord(ctx, c.Table, c.RecordID)
		switch {
		case errors.Is(getErr, storage.ErrRecordNotFound):
			base = c.Remote
			if base == nil {
				base = c.Local
			}
		case getErr != nil:
			return fmt.Errorf("failed to get local record: %w", getErr)
		}
		if base == nil {
			return fmt.Errorf("conflict %s has no version to merge into", c.Key)
		}
		rec = base.Clone()
		rec.Data = append(rec.Data[:0:0], res.Data...)
		rec.UpdatedAt = s.clock.Now()
		rec.RemoteUpdatedAt = c.RemoteUpdatedAt()
		rec.IsDraft = false
		rec.Synced = false
		entry, err = s.queue.Build(queue.Mutation{
			Record:    rec,
			UserID:    userID,
			Operation: models.OperationUpdate,
		}.WithPriority(priority))
	}
	if err != nil {
		return fmt.Errorf("failed to build resolution entry: %w", err)
	}

	if err := s.store.ResolveConflict(ctx, c.Key, rec, entry); err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", c.Key, err)
	}
	s.refreshStatus(ctx)
	return nil
}

func scopeOf(c *models.Conflict) string {
	if c.Remote != nil {
		return c.Remote.ScopeID
	}
	if c.Local != nil {
		return c.Local.ScopeID
	}
	return ""
}
