package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/client/auth"
	"github.com/iudanet/medsync/internal/client/cache"
	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/client/notify"
	"github.com/iudanet/medsync/internal/client/queue"
	"github.com/iudanet/medsync/internal/client/repository"
	"github.com/iudanet/medsync/internal/client/storage/boltdb"
	"github.com/iudanet/medsync/internal/client/sync"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/config"
	"github.com/iudanet/medsync/internal/conflict"
	pkgapi "github.com/iudanet/medsync/pkg/api"
)

// Authenticator - сессия пользователя (auth.Service)
type Authenticator interface {
	Register(ctx context.Context, username, password, hospitalID, role string) (*pkgapi.RegisterResponse, error)
	Login(ctx context.Context, username, password string) (*auth.Session, error)
	Unlock(ctx context.Context, password string) (*auth.Session, error)
	Logout(ctx context.Context) error
	Username(ctx context.Context) (string, error)
	IsAuthenticated(ctx context.Context) (bool, error)
}

// Components - внешние зависимости клиента
type Components struct {
	Store  *boltdb.Storage
	Remote api.Remote
	Auth   Authenticator
	Prober network.Prober
	Clock  clock.Clock
}

// App - собранный клиент. Репозитории появляются после Attach, когда известен
// автор изменений.
type App struct {
	Store   *boltdb.Storage
	Remote  api.Remote
	Auth    Authenticator
	Monitor *network.Monitor
	Queue   *queue.Queue
	Cache   *cache.Cache
	Sync    *sync.Service

	Patients      *repository.Patients
	Consultations *repository.Consultations
	Prescriptions *repository.Prescriptions

	prober network.Prober
	clock  clock.Clock
	cfg    *config.Client
	logger *slog.Logger
}

// NewApp wires the offline-first stack over c. The monitor starts OFFLINE
// until Probe or Watch reaches the server.
func NewApp(cfg *config.Client, c Components, logger *slog.Logger) (*App, error) {
	policy, err := conflict.New(cfg.Sync.ConflictPolicy)
	if err != nil {
		return nil, err
	}

	monitor := network.New(false, logger)
	q := queue.New(c.Store, c.Clock, logger, queue.WithBackoff(cfg.Sync.BackoffBase, cfg.Sync.BackoffMax))
	ch := cache.New(c.Store, q, c.Remote, monitor, c.Clock, logger, cache.Config{
		Retention:          cfg.Cache.Retention,
		PrescriptionWindow: cfg.Cache.PrescriptionWindow,
		EssentialLimit:     cfg.Cache.EssentialLimit,
	})
	svc := sync.New(c.Store, q, c.Remote, monitor, c.Clock, logger,
		sync.WithPolicy(policy),
		sync.WithNotifier(notify.New(cfg.Notify.WebhookURL, cfg.Notify.Timeout), cfg.Notify.Timeout),
		sync.WithMinInterval(cfg.Sync.MinInterval),
		sync.WithSchedule(cfg.Sync.Schedule),
		sync.WithCleanup(ch, cfg.Cache.CleanupSchedule),
	)

	return &App{
		Store:   c.Store,
		Remote:  c.Remote,
		Auth:    c.Auth,
		Monitor: monitor,
		Queue:   q,
		Cache:   ch,
		Sync:    svc,
		prober:  c.Prober,
		clock:   c.Clock,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Open opens the local database and builds the HTTP-backed App.
func Open(ctx context.Context, cfg *config.Client, logger *slog.Logger) (*App, error) {
	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout)
	app, err := NewApp(cfg, Components{
		Store:  store,
		Remote: client,
		Auth:   auth.NewService(client, store, store, logger),
		Prober: network.ProberFunc(client.Health),
		Clock:  clock.NewMonotonic(),
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

// Attach создает репозитории от имени пользователя сессии
func (a *App) Attach(session *auth.Session) {
	deps := repository.Deps{
		Store:   a.Store,
		Queue:   a.Queue,
		Remote:  a.Remote,
		Cache:   a.Cache,
		Monitor: a.Monitor,
		Clock:   a.clock,
		Logger:  a.logger,
		UserID:  session.UserID,
		Limit:   a.cfg.Cache.EssentialLimit,
	}
	a.Patients = repository.NewPatients(deps)
	a.Consultations = repository.NewConsultations(deps)
	a.Prescriptions = repository.NewPrescriptions(deps)
}

// Probe проверяет связь с сервером один раз и выставляет состояние монитора
func (a *App) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.Network.ProbeInterval)
	defer cancel()

	err := a.prober.Probe(probeCtx)
	if err != nil {
		a.logger.Debug("Server is unreachable", slog.Any("error", err))
	}
	a.Monitor.SetOnline(err == nil)
	return err == nil
}

// Close detaches the sync service and closes the database.
func (a *App) Close() error {
	a.Sync.Stop()
	a.Sync.Close()
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
