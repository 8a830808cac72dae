package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyStarted возвращается при повторном Start
var ErrAlreadyStarted = errors.New("sync service already started")

// Start включает автоматическую синхронизацию: при восстановлении сети и по
// расписанию (WithSchedule). Очистка кэша выполняется по расписанию WithCleanup.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	c := cron.New()
	if s.schedule != "" {
		if _, err := c.AddFunc(s.schedule, func() { s.autoSync(ctx, "schedule") }); err != nil {
			s.setStarted(false)
			return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
		}
	}
	if s.cleaner != nil && s.cleanupSchedule != "" {
		if _, err := c.AddFunc(s.cleanupSchedule, func() { s.cleanup(ctx) }); err != nil {
			s.setStarted(false)
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.cleanupSchedule, err)
		}
	}

	onlineID := s.monitor.OnOnline(func() {
		s.publish()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.autoSync(ctx, "reconnect")
		}()
	})
	offlineID := s.monitor.OnOffline(s.publish)

	s.mu.Lock()
	s.cron = c
	s.onlineID = onlineID
	s.offlineID = offlineID
	s.mu.Unlock()

	c.Start()
	s.logger.Info("Sync service started", "schedule", s.schedule, "cleanup_schedule", s.cleanupSchedule)
	return nil
}

// Stop отключает автоматическую синхронизацию и ждет фоновые задачи
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	c := s.cron
	onlineID, offlineID := s.onlineID, s.offlineID
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	s.monitor.RemoveOnlineCallback(onlineID)
	s.monitor.RemoveOfflineCallback(offlineID)
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("Sync service stopped")
}

func (s *Service) setStarted(v bool) {
	s.mu.Lock()
	s.started = v
	s.mu.Unlock()
}

func (s *Service) autoSync(ctx context.Context, trigger string) {
	if ctx.Err() != nil || !s.monitor.IsOnline() {
		return
	}
	res, err := s.Sync(ctx, Options{})
	if err != nil {
		s.logger.Warn("Automatic sync failed", "trigger", trigger, slog.Any("error", err))
		return
	}
	if res.ShortCircuited {
		return
	}
	s.logger.Info("Automatic sync finished",
		"trigger", trigger,
		"pushed", res.Pushed,
		"remaining", res.Remaining,
	)
}

func (s *Service) cleanup(ctx context.Context) {
	removed, err := s.cleaner.CleanExpiredCache(ctx)
	if err != nil {
		s.logger.Warn("Cache cleanup failed", slog.Any("error", err))
		return
	}
	s.logger.Info("Cache cleanup finished", "removed", removed)
}
