// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package store opens the service's databases and manages their schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Pool is the subset of *pgxpool.Pool used by repositories.
// pgxmock.PgxPoolIface satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time interface check.
var _ Pool = (*pgxpool.Pool)(nil)

// pinger is the part of *pgxpool.Pool used to wait for the database.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConnectRetry controls how OpenPostgres waits for the database to come up.
type ConnectRetry struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

// DefaultConnectRetry waits up to roughly 30 seconds.
var DefaultConnectRetry = ConnectRetry{Attempts: 8, Base: 250 * time.Millisecond, Max: 5 * time.Second}

// OpenPostgres creates a pgx pool for dsn and waits until it answers a ping.
func OpenPostgres(ctx context.Context, dsn string, cr ConnectRetry, logger *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse postgres dsn").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, cr, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres connection established",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns,
	)
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, cr ConnectRetry, logger *slog.Logger) error {
	backoff := retry.NewExponential(cr.Base)
	if cr.Max > 0 {
		backoff = retry.WithCappedDuration(cr.Max, backoff)
	}
	backoff = retry.WithMaxRetries(cr.Attempts, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.Warn("database not ready, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
