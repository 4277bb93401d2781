// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/internal/auth/memory"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, expiresIn time.Duration) *auth.Session {
	t.Helper()
	_, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	s, err := auth.NewSession(ulid.Make(), hash, base, base.Add(expiresIn))
	require.NoError(t, err)
	return s
}

func TestSessionStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	s := newSession(t, time.Hour)

	require.NoError(t, store.Create(ctx, s))
	got, err := store.GetByTokenHash(ctx, s.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = store.GetByTokenHash(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	assert.Error(t, store.Create(ctx, s), "duplicate token hash")
}

func TestSessionStore_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("active session", func(t *testing.T) {
		store := memory.NewSessionStore()
		s := newSession(t, time.Hour)
		require.NoError(t, store.Create(ctx, s))

		at := base.Add(time.Minute)
		require.NoError(t, store.Revoke(ctx, s.TokenHash, at))

		got, err := store.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.Equal(t, at, *got.RevokedAt)

		assert.ErrorIs(t, store.Revoke(ctx, s.TokenHash, at), auth.ErrNotFound, "second revoke")
	})

	t.Run("expired session", func(t *testing.T) {
		store := memory.NewSessionStore()
		s := newSession(t, time.Hour)
		require.NoError(t, store.Create(ctx, s))
		assert.ErrorIs(t, store.Revoke(ctx, s.TokenHash, base.Add(time.Hour)), auth.ErrNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		store := memory.NewSessionStore()
		assert.ErrorIs(t, store.Revoke(ctx, "missing", base), auth.ErrNotFound)
	})

	t.Run("exactly one concurrent revoke wins", func(t *testing.T) {
		store := memory.NewSessionStore()
		s := newSession(t, time.Hour)
		require.NoError(t, store.Create(ctx, s))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if store.Revoke(ctx, s.TokenHash, base.Add(time.Second)) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()

	short := newSession(t, time.Minute)
	long := newSession(t, 2*time.Hour)
	require.NoError(t, store.Create(ctx, short))
	require.NoError(t, store.Create(ctx, long))

	n, err := store.DeleteExpired(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	_, err = store.GetByTokenHash(ctx, long.TokenHash)
	assert.NoError(t, err)
}
