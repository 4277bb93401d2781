// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usersvc.db")

	m, err := store.NewMigrator(store.SQLiteURL(path))
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := store.OpenSQLite(context.Background(), path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestAccount(t *testing.T, email string) *auth.Account {
	t.Helper()
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	a, err := auth.NewAccount(email, "hash", "Ada", "Lovelace", &dob)
	require.NoError(t, err)
	return a
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	a := newTestAccount(t, "ada@example.com")
	require.NoError(t, repo.Create(ctx, a))
	assert.Equal(t, fixed, a.CreatedAt)

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Email, got.Email)
		assert.Equal(t, "Ada", got.FirstName)
		require.NotNil(t, got.DateOfBirth)
		assert.Equal(t, *a.DateOfBirth, *got.DateOfBirth)
		assert.Equal(t, fixed, got.CreatedAt)
	})

	t.Run("get by email ignores case", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "ADA@Example.COM")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := newTestAccount(t, "ada@example.com")
		err := repo.Create(ctx, dup)
		require.ErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.Equal(t, auth.KindConflict, auth.KindOf(err))
	})

	t.Run("missing dob", func(t *testing.T) {
		b, err := auth.NewAccount("grace@example.com", "hash", "Grace", "Hopper", nil)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, b))

		got, err := repo.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Nil(t, got.DateOfBirth)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, ulid.Make())
		require.ErrorIs(t, err, auth.ErrNotFound)

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(openTestDB(t))

	var (
		wg       sync.WaitGroup
		created  atomic.Int32
		conflict atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := auth.NewAccount("race@example.com", "hash", "Ada", "Lovelace", nil)
			if err != nil {
				return
			}
			switch err := repo.Create(ctx, a); {
			case err == nil:
				created.Add(1)
			case auth.KindOf(err) == auth.KindConflict:
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(7), conflict.Load())
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	account := newTestAccount(t, "sessions@example.com")
	require.NoError(t, NewAccountRepository(db).Create(ctx, account))
	repo := NewSessionRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newSession := func(t *testing.T, issued, expires time.Time) *auth.Session {
		t.Helper()
		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		s, err := auth.NewSession(account.ID, hash, issued, expires)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, s))
		return s
	}

	t.Run("round trip", func(t *testing.T) {
		s := newSession(t, now, now.Add(time.Hour))
		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, account.ID, got.AccountID)
		assert.Equal(t, now, got.IssuedAt)
		assert.Equal(t, now.Add(time.Hour), got.ExpiresAt)
		assert.Nil(t, got.RevokedAt)
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, err := repo.GetByTokenHash(ctx, auth.HashSessionToken("nope"))
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("revoke once", func(t *testing.T) {
		s := newSession(t, now, now.Add(time.Hour))
		at := now.Add(time.Minute)

		require.NoError(t, repo.Revoke(ctx, s.TokenHash, at))
		err := repo.Revoke(ctx, s.TokenHash, at)
		require.ErrorIs(t, err, auth.ErrNotFound)

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.Equal(t, at, *got.RevokedAt)
	})

	t.Run("revoke at expiry is not found", func(t *testing.T) {
		s := newSession(t, now, now.Add(time.Hour))
		err := repo.Revoke(ctx, s.TokenHash, now.Add(time.Hour))
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete expired honors cutoff", func(t *testing.T) {
		old := newSession(t, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
		recent := newSession(t, now.Add(-2*time.Hour), now.Add(-30*time.Minute))

		n, err := repo.DeleteExpired(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.GetByTokenHash(ctx, old.TokenHash)
		require.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByTokenHash(ctx, recent.TokenHash)
		require.NoError(t, err)
	})
}
