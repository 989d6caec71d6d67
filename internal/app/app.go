// Package app wires configuration, storage and HTTP serving together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/internal/analytics"
	"github.com/bissquit/incident-tracker/internal/config"
	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/bissquit/incident-tracker/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// App is a running tracker: the API server, the metrics server and the
// background jobs sharing one database pool.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	background    context.CancelFunc
	reporter      *analytics.Reporter
}

// New connects to the database, applies migrations when configured and
// builds both servers. Nothing listens until Run.
func New(cfg *config.Config) (*App, error) {
	logger := InitLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL, postgres.MigrateUp); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		background: cancel,
	}

	fail := func(err error) (*App, error) {
		cancel()
		db.Close()
		return nil, err
	}

	router, reporter, err := a.setupRouter()
	if err != nil {
		return fail(fmt.Errorf("setup router: %w", err))
	}

	go metrics.CollectPool(bgCtx, db, metrics.DefaultPoolInterval)

	if reporter != nil {
		if err := reporter.Start(bgCtx); err != nil {
			return fail(fmt.Errorf("start metrics reporter: %w", err))
		}
		a.reporter = reporter
	}

	a.server = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.MetricsPort,
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return a, nil
}

// Connect opens the database pool described by cfg.
func Connect(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Run serves until Shutdown is called or either server fails. A failing
// server closes the other one so Run always returns.
func (a *App) Run() error {
	a.logger.Info("starting servers",
		"addr", a.server.Addr,
		"metrics_addr", a.metricsServer.Addr,
		"auth_required", a.config.Auth.Required,
	)

	var g errgroup.Group
	g.Go(func() error { return a.serve(a.metricsServer, "metrics server") })
	g.Go(func() error { return a.serve(a.server, "server") })
	return g.Wait()
}

func (a *App) serve(srv *http.Server, name string) error {
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	_ = a.server.Close()
	_ = a.metricsServer.Close()
	return fmt.Errorf("%s: %w", name, err)
}

// Shutdown stops background jobs, drains both servers and closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	if a.reporter != nil {
		a.reporter.Stop()
	}
	a.background()

	var g errgroup.Group
	g.Go(func() error {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
	err := g.Wait()

	a.db.Close()
	return err
}

// Router returns the API handler, for tests.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// DB returns the database pool.
func (a *App) DB() *pgxpool.Pool {
	return a.db
}
