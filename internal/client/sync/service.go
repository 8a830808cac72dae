// Package sync drains the sync queue against the remote system of record,
// detects conflicts and maintains the aggregate sync status shown to the user.
package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/client/notify"
	"github.com/iudanet/medsync/internal/client/queue"
	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/conflict"
	"github.com/iudanet/medsync/internal/models"
)

// ErrConflictPending сообщается для мутаций сущности с неразрешенным конфликтом
var ErrConflictPending = errors.New("entity has an unresolved conflict")

// Store - часть локального хранилища, нужная сервису синхронизации
type Store interface {
	storage.RecordStorage
	storage.ConflictStorage
	storage.MetadataStorage
}

// Queue is the subset of queue.Queue the service drains.
type Queue interface {
	Build(m queue.Mutation) (*models.QueueEntry, error)
	Get(ctx context.Context, id string) (*models.QueueEntry, error)
	ListOrdered(ctx context.Context) ([]*models.QueueEntry, error)
	Ack(ctx context.Context, id string, remoteUpdatedAt int64) error
	MarkFailed(ctx context.Context, id string, cause error) (*models.QueueEntry, error)
	MarkRejected(ctx context.Context, id string, cause error) (*models.QueueEntry, error)
	Len(ctx context.Context) (int, error)
	OnChange(fn func()) func()
}

// Monitor is the subset of network.Monitor the service listens to.
type Monitor interface {
	IsOnline() bool
	OnOnline(cb network.Callback) network.CallbackID
	OnOffline(cb network.Callback) network.CallbackID
	RemoveOnlineCallback(id network.CallbackID)
	RemoveOfflineCallback(id network.CallbackID)
}

// Cleaner удаляет устаревшие записи кэша (cache.Cache)
type Cleaner interface {
	CleanExpiredCache(ctx context.Context) (int, error)
}

// Service - оркестратор синхронизации
type Service struct {
	store    Store
	queue    Queue
	remote   api.Remote
	monitor  Monitor
	clock    clock.Clock
	policy   conflict.Policy
	notifier notify.Notifier
	cleaner  Cleaner
	logger   *slog.Logger

	group       singleflight.Group
	subscribers map[int]func(models.SyncStatus)
	cron        *cron.Cron
	unsubscribe func()

	schedule        string
	cleanupSchedule string
	minInterval     time.Duration
	notifyTimeout   time.Duration

	status    models.SyncStatus
	nextSubID int
	onlineID  network.CallbackID
	offlineID network.CallbackID
	started   bool

	wg stdsync.WaitGroup
	mu stdsync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy задает политику автоматического разрешения конфликтов
func WithPolicy(p conflict.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithNotifier sets the dispatcher called after consultations are acknowledged.
func WithNotifier(n notify.Notifier, timeout time.Duration) Option {
	return func(s *Service) {
		s.notifier = n
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithMinInterval: без ForceSync повторная синхронизация в пределах d
// при пустой (или отложенной) очереди ничего не делает.
func WithMinInterval(d time.Duration) Option {
	return func(s *Service) { s.minInterval = d }
}

// WithSchedule sets the cron spec of the periodic background drain.
func WithSchedule(spec string) Option {
	return func(s *Service) { s.schedule = spec }
}

// WithCleanup sets the cron spec of the cache expiry sweep.
func WithCleanup(c Cleaner, spec string) Option {
	return func(s *Service) {
		s.cleaner = c
		s.cleanupSchedule = spec
	}
}

// New creates a Service. Status is loaded from the local store; nothing is sent
// to the remote until Sync, SyncNow or Start is called.
func New(store Store, q Queue, remote api.Remote, monitor Monitor, clk clock.Clock, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		queue:         q,
		remote:        remote,
		monitor:       monitor,
		clock:         clk,
		logger:        logger,
		policy:        conflict.Manual{},
		notifier:      notify.NopNotifier{},
		notifyTimeout: notify.DefaultTimeout,
		subscribers:   make(map[int]func(models.SyncStatus)),
		status:        models.SyncStatus{State: models.SyncIdle},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = q.OnChange(func() { s.refreshStatus(context.Background()) })
	s.refreshStatus(context.Background())
	return s
}

// Close detaches the service from the queue. Call Stop first if Start was called.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// GetSyncStatus возвращает снимок статуса без обращения к сети
func (s *Service) GetSyncStatus() models.SyncStatus {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	st.IsOnline = s.monitor.IsOnline()
	return st
}

// Subscribe регистрирует получателя статуса; вызывается после каждого изменения
// очереди, конфликтов, состояния или сети. Возвращает функцию отписки.
func (s *Service) Subscribe(fn func(models.SyncStatus)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// refreshStatus пересчитывает производные счетчики из хранилища
func (s *Service) refreshStatus(ctx context.Context) {
	pending, err := s.queue.Len(ctx)
	if err != nil {
		s.logger.Warn("Failed to count pending changes", slog.Any("error", err))
		pending = -1
	}
	conflicts, err := s.store.CountConflicts(ctx)
	if err != nil {
		s.logger.Warn("Failed to count conflicts", slog.Any("error", err))
		conflicts = -1
	}
	lastSync, err := s.store.GetLastSyncTimestamp(ctx)
	if err != nil {
		s.logger.Warn("Failed to get last sync timestamp", slog.Any("error", err))
		lastSync = -1
	}

	s.mu.Lock()
	if pending >= 0 {
		s.status.PendingChanges = pending
	}
	if conflicts >= 0 {
		s.status.Conflicts = conflicts
	}
	if lastSync >= 0 {
		s.status.LastSync = lastSync
	}
	s.mu.Unlock()

	s.publish()
}

func (s *Service) setState(state models.SyncState, lastErr string) {
	s.mu.Lock()
	s.status.State = state
	s.status.IsSyncing = state == models.SyncSyncing
	if state != models.SyncSyncing {
		s.status.LastError = lastErr
	}
	s.mu.Unlock()

	s.refreshStatus(context.Background())
}

func (s *Service) publish() {
	st := s.GetSyncStatus()

	s.mu.Lock()
	subscribers := make([]func(models.SyncStatus), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(st)
	}
}

// Wait blocks until background notifications and reconnect drains finish.
func (s *Service) Wait() {
	s.wg.Wait()
}
