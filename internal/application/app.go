// Package application wires configuration, storage, metrics and the core
// service together for the server and CLI binaries.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/formsvc/internal/config"
	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/database"
	"github.com/JonMunkholm/formsvc/internal/database/memstore"
	"github.com/JonMunkholm/formsvc/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options selects how the App is built.
type Options struct {
	// Memory uses the in-memory store instead of PostgreSQL.
	Memory bool
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// App holds the long-lived dependencies of a binary.
type App struct {
	Config  *config.Config
	Service *core.Service
	Metrics *metrics.Registry
	Store   core.Store

	pool *pgxpool.Pool
}

// New connects to the configured store and builds the service.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.New(),
	}

	if opts.Memory {
		app.Store = memstore.New()
		slog.Info("using in-memory store")
	} else {
		pool, err := Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.pool = pool
		app.Store = database.New(pool)

		if opts.Migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			slog.Info("migrations applied")
		}
	}

	app.Service = core.NewService(app.Store, ServiceOptions(cfg, app.Metrics))
	return app, nil
}

// Pool returns the PostgreSQL pool, or nil for the in-memory store.
func (a *App) Pool() *pgxpool.Pool {
	return a.pool
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// ServiceOptions translates configuration into core.Options.
func ServiceOptions(cfg *config.Config, m core.Metrics) core.Options {
	opts := core.Options{
		Metrics:         m,
		SequenceRetries: uint64(cfg.Sequence.MaxRetries),
		SequenceBackoff: cfg.Sequence.Backoff,
		ExportLimiter:   core.NewExportLimiter(cfg.Export.MaxConcurrent, cfg.Export.MaxWaitTime),
	}
	if cfg.Clock.FixedNow > 0 {
		opts.Clock = core.FixedClock(cfg.Clock.FixedNow)
		slog.Warn("clock pinned", "now", cfg.Clock.FixedNow)
	}
	return opts
}

// Connect opens and pings a pgx pool sized from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is not configured (set DATABASE_URL)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
