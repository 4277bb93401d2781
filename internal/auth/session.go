// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32             // 32 bytes = 64 hex chars
	DefaultSessionTTL  = 24 * time.Hour // lifetime of an issued session
	DefaultSweepGrace  = time.Hour      // how long expired sessions linger before the sweep removes them
	DefaultSweepPeriod = 10 * time.Minute
)

// Session represents an authenticated login.
// Only the SHA-256 of the token is stored; the plaintext goes to the client.
type Session struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// NewSession creates a validated Session issued at issuedAt.
func NewSession(accountID ulid.ULID, tokenHash string, issuedAt, expiresAt time.Time) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() || !expiresAt.After(issuedAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("issued_at", issuedAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after issue time")
	}

	return &Session{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Revoked reports whether the session was ended by logout.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// IsExpiredAt returns true if the session's validity window has closed at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsValidAt returns true if the session is neither revoked nor expired at t.
func (s *Session) IsValidAt(t time.Time) bool {
	return !s.Revoked() && !s.IsExpiredAt(t)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA-256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifySessionToken checks if the plaintext token matches the stored hash in constant time.
func VerifySessionToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashSessionToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash, revoked or not.
	// Returns ErrNotFound if no session has the hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Revoke marks the session revoked at the given time.
	// Returns ErrNotFound if the session is unknown, already revoked, or expired at that time.
	Revoke(ctx context.Context, tokenHash string, at time.Time) error

	// DeleteExpired removes sessions whose expiry is before cutoff and returns
	// the count of deleted records.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
