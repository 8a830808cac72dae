// Package server assembles the records API: routes, middleware and the HTTP
// server lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/medsync/internal/config"
	"github.com/iudanet/medsync/internal/server/handlers"
	"github.com/iudanet/medsync/internal/server/jwt"
	"github.com/iudanet/medsync/internal/server/middleware"
	"github.com/iudanet/medsync/internal/server/storage/sqlite"
)

// Server - HTTP сервер системы учета записей
type Server struct {
	logger  *slog.Logger
	http    *http.Server
	limiter *middleware.RateLimiter
}

// New создает сервер поверх открытого хранилища
func New(cfg *config.Server, db *sqlite.Storage, logger *slog.Logger) *Server {
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
	metrics := middleware.NewMetrics()

	handler := Routes(Deps{
		Auth:    handlers.NewAuthHandler(logger, db, tokens),
		Records: handlers.NewRecordsHandler(logger, db),
		Health:  handlers.NewHealthHandler(logger, db),
		Tokens:  tokens,
		Limiter: limiter,
		Metrics: metrics,
		Logger:  logger,
	})

	return &Server{
		logger:  logger,
		limiter: limiter,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Deps - зависимости маршрутов
type Deps struct {
	Auth    *handlers.AuthHandler
	Records *handlers.RecordsHandler
	Health  *handlers.HealthHandler
	Tokens  *jwt.Manager
	Limiter *middleware.RateLimiter
	Metrics *middleware.Metrics
	Logger  *slog.Logger
}

// Routes собирает маршруты API
func Routes(d Deps) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.Auth(d.Logger, d.Tokens)

	mux.HandleFunc("GET /api/v1/health", d.Health.Health)
	mux.HandleFunc("POST /api/v1/auth/register", d.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", d.Auth.Login)

	mux.Handle("GET /api/v1/records/{table}", auth(http.HandlerFunc(d.Records.List)))
	mux.Handle("POST /api/v1/records/{table}", auth(http.HandlerFunc(d.Records.Create)))
	mux.Handle("GET /api/v1/records/{table}/{id}", auth(http.HandlerFunc(d.Records.Get)))
	mux.Handle("PUT /api/v1/records/{table}/{id}", auth(http.HandlerFunc(d.Records.Update)))
	mux.Handle("DELETE /api/v1/records/{table}/{id}", auth(http.HandlerFunc(d.Records.Delete)))

	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Metrics последним: ServeMux записывает шаблон маршрута в тот же *http.Request
	return middleware.Chain(mux,
		middleware.Recovery(d.Logger),
		middleware.Logging(d.Logger, "/api/v1/health", "/metrics"),
		d.Limiter.Middleware(),
		d.Metrics.Middleware(),
	)
}

// Run обслуживает запросы до отмены ctx, затем корректно завершает сервер
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }
