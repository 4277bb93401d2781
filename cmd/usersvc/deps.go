// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/sp-platform/user-service/internal/api"
	"github.com/sp-platform/user-service/internal/config"
	"github.com/sp-platform/user-service/internal/observability"
	"github.com/sp-platform/user-service/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader builds the configuration from a file and flags.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (*config.Config, error)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer

	// PostgresOpener connects to PostgreSQL.
	// Default: store.OpenPostgres with store.DefaultConnectRetry
	PostgresOpener func(ctx context.Context, dsn string, logger *slog.Logger) (PostgresPool, error)

	// SQLiteOpener opens the SQLite database file.
	// Default: store.OpenSQLite
	SQLiteOpener func(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error)

	// RedisOpener connects to Redis for the redis session store.
	// Default: store.OpenRedis with store.DefaultConnectRetry
	RedisOpener func(ctx context.Context, opts store.RedisOptions, logger *slog.Logger) (RedisClient, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the HTTP API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger) APIServer
}

// PostgresPool is the part of *pgxpool.Pool used by serve.
type PostgresPool interface {
	store.Pool
	Ping(ctx context.Context) error
	Close()
}

// RedisClient is the part of *redis.Client used by serve.
type RedisClient interface {
	goredis.Cmdable
	Close() error
}

// AutoMigrator runs pending migrations on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() *prometheus.Registry
}

// APIServer interface wraps the methods used from api.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// withDefaults fills every nil field with its production implementation.
func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.PostgresOpener == nil {
		d.PostgresOpener = func(ctx context.Context, dsn string, logger *slog.Logger) (PostgresPool, error) {
			return store.OpenPostgres(ctx, dsn, store.DefaultConnectRetry, logger)
		}
	}
	if d.SQLiteOpener == nil {
		d.SQLiteOpener = store.OpenSQLite
	}
	if d.RedisOpener == nil {
		d.RedisOpener = func(ctx context.Context, opts store.RedisOptions, logger *slog.Logger) (RedisClient, error) {
			return store.OpenRedis(ctx, opts, store.DefaultConnectRetry, logger)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger) APIServer {
			return api.NewServer(addr, handler, readHeaderTimeout, logger)
		}
	}
	return d
}
