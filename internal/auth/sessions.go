// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sp-platform/user-service/pkg/errutil"
)

// SessionManager issues, validates and revokes sessions on top of a SessionRepository.
type SessionManager struct {
	repo   SessionRepository
	ttl    time.Duration
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionTTL sets how long issued sessions stay valid.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) { m.ttl = ttl }
}

// WithSweepGrace sets how long expired sessions are kept before Sweep removes them.
func WithSweepGrace(grace time.Duration) SessionOption {
	return func(m *SessionManager) { m.grace = grace }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// WithSessionLogger sets the logger used by the sweeper.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = logger }
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(repo SessionRepository, opts ...SessionOption) (*SessionManager, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("session repository is required")
	}
	m := &SessionManager{
		repo:   repo,
		ttl:    DefaultSessionTTL,
		grace:  DefaultSweepGrace,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		return nil, oops.Code("SESSION_MANAGER_INVALID").With("ttl", m.ttl).Errorf("session TTL must be positive")
	}
	if m.grace < 0 {
		return nil, oops.Code("SESSION_MANAGER_INVALID").With("grace", m.grace).Errorf("sweep grace cannot be negative")
	}
	if m.logger == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("logger is required")
	}
	return m, nil
}

// TTL returns the lifetime of issued sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates and stores a session for accountID.
// Returns the session and the plaintext token to hand to the client.
func (m *SessionManager) Issue(ctx context.Context, accountID ulid.ULID) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}

	now := m.now()
	session, err := NewSession(accountID, tokenHash, now, now.Add(m.ttl))
	if err != nil {
		return nil, "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "build session").
			Wrap(err)
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "persist session").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return session, token, nil
}

// Validate returns the session for token if it is neither revoked nor expired.
// Unknown, revoked and expired tokens all yield ErrSessionInvalid.
func (m *SessionManager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code(CodeSessionInvalid).Wrap(ErrSessionInvalid)
	}

	session, err := m.repo.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeSessionInvalid).Wrap(ErrSessionInvalid)
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if !session.IsValidAt(m.now()) {
		return nil, oops.Code(CodeSessionInvalid).
			With("session_id", session.ID.String()).
			With("revoked", session.Revoked()).
			Wrap(ErrSessionInvalid)
	}
	return session, nil
}

// Revoke ends the session for token.
// Unknown, already revoked and expired tokens yield ErrNotFound.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return oops.Code(CodeSessionNotFound).Wrap(ErrNotFound)
	}

	err := m.repo.Revoke(ctx, HashSessionToken(token), m.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeSessionNotFound).Wrap(err)
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			Wrap(err)
	}
	return nil
}

// Sweep removes sessions that expired more than the grace period ago.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.grace)
	n, err := m.repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").
			With("cutoff", cutoff).
			Wrap(err)
	}
	SessionsSweptTotal.Add(float64(n))
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
// Sweep failures are logged and do not stop the loop.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepPeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogError(m.logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				m.logger.Info("swept expired sessions", "count", n)
			}
		}
	}
}
