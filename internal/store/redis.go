// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package store

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RedisOptions addresses a single Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type redisPinger struct {
	rdb goredis.Cmdable
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err() //nolint:wrapcheck // wrapped by waitForDatabase
}

// OpenRedis creates a Redis client and waits until it answers a ping.
func OpenRedis(ctx context.Context, opts RedisOptions, cr ConnectRetry, logger *slog.Logger) (*goredis.Client, error) {
	if opts.Addr == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis address cannot be empty")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := waitForDatabase(ctx, redisPinger{rdb: rdb}, cr, logger); err != nil {
		_ = rdb.Close() //nolint:errcheck // connect error takes precedence
		return nil, oops.With("addr", opts.Addr).Wrap(err)
	}

	logger.Info("redis connection established", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}
