// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Register the sqlite3 database/sql driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/oops"
)

// SQLiteDSN returns the DSN used for the service's SQLite databases:
// WAL journaling, a busy timeout for concurrent writers, and enforced foreign keys.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL", path)
}

// OpenSQLite opens the SQLite database at path and checks that it responds.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open sqlite").With("path", path).Wrap(err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping sqlite").With("path", path).Wrap(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("sqlite connection established", "path", path)
	return db, nil
}
