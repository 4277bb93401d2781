// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
)

// SessionStore is an in-memory auth.SessionRepository keyed by token hash.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionStore)(nil)

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*auth.Session)}
}

// Create stores a copy of session.
func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.TokenHash]; exists {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("token hash already stored")
	}
	stored := *session
	s.sessions[session.TokenHash] = &stored
	return nil
}

// GetByTokenHash returns a copy of the session with tokenHash.
func (s *SessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	out := *session
	if session.RevokedAt != nil {
		at := *session.RevokedAt
		out.RevokedAt = &at
	}
	return &out, nil
}

// Revoke marks the session revoked. Exactly one concurrent caller succeeds.
func (s *SessionStore) Revoke(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok || !session.IsValidAt(at) {
		return oops.Code(auth.CodeSessionNotFound).Wrap(auth.ErrNotFound)
	}
	revokedAt := at
	session.RevokedAt = &revokedAt
	return nil
}

// DeleteExpired removes sessions whose expiry is before cutoff.
func (s *SessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, including revoked and expired ones.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
