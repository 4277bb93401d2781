// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
)

// SessionRepository implements auth.SessionRepository using SQLite.
type SessionRepository struct {
	db *sql.DB
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	var revokedAt sql.NullInt64
	if session.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: session.RevokedAt.UnixNano(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, issued_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		session.ID.String(),
		session.AccountID.String(),
		session.TokenHash,
		session.IssuedAt.UnixNano(),
		session.ExpiresAt.UnixNano(),
		revokedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, issued_at, expires_at, revoked_at
		FROM sessions
		WHERE token_hash = ?
	`, tokenHash)

	var (
		idStr, accountIDStr string
		s                   auth.Session
		issued, expires     int64
		revokedAt           sql.NullInt64
	)
	err := row.Scan(&idStr, &accountIDStr, &s.TokenHash, &issued, &expires, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if s.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if s.AccountID, err = ulid.Parse(accountIDStr); err != nil {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT_ID").With("account_id", accountIDStr).Wrap(err)
	}
	s.IssuedAt = time.Unix(0, issued).UTC()
	s.ExpiresAt = time.Unix(0, expires).UTC()
	if revokedAt.Valid {
		t := time.Unix(0, revokedAt.Int64).UTC()
		s.RevokedAt = &t
	}
	return &s, nil
}

// Revoke marks an active session revoked with a single conditional update.
func (r *SessionRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?
	`, at.UnixNano(), tokenHash, at.UnixNano())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}
	if n == 0 {
		return oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is before cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}
	return n, nil
}
