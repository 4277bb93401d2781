// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package redis provides a Redis-backed session repository. Sessions are stored
// as JSON under their token hash and expire through key TTLs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "usersvc:session:"

type sessionRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRepository implements auth.SessionRepository on Redis.
// Revocation deletes the key, so a revoked session reads back as not found.
type SessionRepository struct {
	rdb    goredis.Cmdable
	prefix string
	now    func() time.Time
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// Option configures a SessionRepository.
type Option func(*SessionRepository)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(r *SessionRepository) { r.prefix = prefix }
}

// WithClock overrides the time source used to compute key TTLs.
func WithClock(now func() time.Time) Option {
	return func(r *SessionRepository) { r.now = now }
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(rdb goredis.Cmdable, opts ...Option) *SessionRepository {
	r := &SessionRepository{rdb: rdb, prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SessionRepository) key(tokenHash string) string {
	return r.prefix + tokenHash
}

func encodeSession(s *auth.Session) ([]byte, error) {
	//nolint:wrapcheck // callers wrap with oops
	return json.Marshal(sessionRecord{
		ID:        s.ID.String(),
		AccountID: s.AccountID.String(),
		IssuedAt:  s.IssuedAt.UTC(),
		ExpiresAt: s.ExpiresAt.UTC(),
	})
}

// Create stores the session with a TTL ending at its expiry.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			With("expires_at", session.ExpiresAt).
			Errorf("session already expired")
	}

	payload, err := encodeSession(session)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "encode session").Wrap(err)
	}

	ok, err := r.rdb.SetNX(ctx, r.key(session.TokenHash), payload, ttl).Result()
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}
	if !ok {
		return oops.Code("SESSION_CREATE_FAILED").
			With("account_id", session.AccountID.String()).
			Errorf("token hash already in use")
	}
	return nil
}

// GetByTokenHash retrieves a live session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := r.rdb.Get(ctx, r.key(tokenHash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	return decodeSession(tokenHash, data)
}

// Revoke deletes the session. GETDEL is atomic, so of several concurrent
// revokes only one observes the key.
func (r *SessionRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	data, err := r.rdb.GetDel(ctx, r.key(tokenHash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "getdel session").
			Wrap(err)
	}

	session, err := decodeSession(tokenHash, data)
	if err != nil {
		return err
	}
	// The key may outlive ExpiresAt by the server's expiry resolution.
	if session.IsExpiredAt(at) {
		return oops.Code(auth.CodeSessionNotFound).
			With("session_id", session.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts sessions when their TTL runs out.
func (r *SessionRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decodeSession(tokenHash string, data []byte) (*auth.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}

	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	accountID, err := ulid.Parse(rec.AccountID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT_ID").With("account_id", rec.AccountID).Wrap(err)
	}
	return &auth.Session{
		ID:        id,
		AccountID: accountID,
		TokenHash: tokenHash,
		IssuedAt:  rec.IssuedAt.UTC(),
		ExpiresAt: rec.ExpiresAt.UTC(),
	}, nil
}
