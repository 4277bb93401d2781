// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/internal/auth/memory"
	"github.com/sp-platform/user-service/internal/auth/postgres"
	authredis "github.com/sp-platform/user-service/internal/auth/redis"
	"github.com/sp-platform/user-service/internal/auth/sqlite"
	"github.com/sp-platform/user-service/internal/config"
	"github.com/sp-platform/user-service/internal/store"
	"github.com/sp-platform/user-service/internal/xdg"
)

const readinessTimeout = 2 * time.Second

// backend holds the repositories selected by configuration.
type backend struct {
	accounts auth.AccountRepository
	sessions auth.SessionRepository
	pingers  []func(ctx context.Context) error
	closers  []func()
}

// openBackend connects the configured account store and, if requested, the Redis session store.
// Pending migrations are applied first when storage.auto_migrate is set.
func openBackend(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		b.accounts = memory.NewAccountStore()
		b.sessions = memory.NewSessionStore()
		logger.Warn("using in-memory storage, data is lost on restart")

	case config.DriverPostgres:
		if cfg.Storage.AutoMigrate {
			if err := autoMigrate(deps, cfg.Storage.PostgresURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := deps.PostgresOpener(ctx, cfg.Storage.PostgresURL, logger)
		if err != nil {
			return nil, oops.Code("STORAGE_OPEN_FAILED").With("driver", cfg.Storage.Driver).Wrap(err)
		}
		b.closers = append(b.closers, pool.Close)
		b.pingers = append(b.pingers, pool.Ping)
		b.accounts = postgres.NewAccountRepository(pool)
		b.sessions = postgres.NewSessionRepository(pool)

	case config.DriverSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.Storage.SQLitePath)); err != nil {
			return nil, oops.Code("STORAGE_OPEN_FAILED").With("driver", cfg.Storage.Driver).Wrap(err)
		}
		if cfg.Storage.AutoMigrate {
			if err := autoMigrate(deps, store.SQLiteURL(cfg.Storage.SQLitePath), logger); err != nil {
				return nil, err
			}
		}
		db, err := deps.SQLiteOpener(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, oops.Code("STORAGE_OPEN_FAILED").With("driver", cfg.Storage.Driver).Wrap(err)
		}
		b.closers = append(b.closers, func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Warn("error closing sqlite database", "error", closeErr)
			}
		})
		b.pingers = append(b.pingers, db.PingContext)
		b.accounts = sqlite.NewAccountRepository(db)
		b.sessions = sqlite.NewSessionRepository(db)

	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "storage.driver").Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Sessions.Store == config.SessionStoreRedis {
		rdb, err := deps.RedisOpener(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, oops.Code("STORAGE_OPEN_FAILED").With("session_store", cfg.Sessions.Store).Wrap(err)
		}
		b.closers = append(b.closers, func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		})
		b.pingers = append(b.pingers, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		b.sessions = authredis.NewSessionRepository(rdb)
	}

	logger.Info("storage ready",
		"driver", cfg.Storage.Driver,
		"session_store", sessionStoreName(cfg),
	)
	return b, nil
}

// Ready reports whether every connected store answers a ping.
func (b *backend) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()
	for _, ping := range b.pingers {
		if err := ping(ctx); err != nil {
			return false
		}
	}
	return true
}

// Close releases connections in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func sessionStoreName(cfg *config.Config) string {
	if cfg.Sessions.Store == "" {
		return cfg.Storage.Driver
	}
	return cfg.Sessions.Store
}

// autoMigrate applies pending migrations for databaseURL.
func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}
