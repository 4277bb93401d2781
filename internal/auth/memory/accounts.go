// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
)

// AccountStore is an in-memory auth.AccountRepository.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
	now     func() time.Time
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountStore)(nil)

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
		now:     time.Now,
	}
}

// Create stores a copy of account. The email check and insert happen under one lock.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	key := auth.NormalizeEmail(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[key]; taken {
		return oops.Code(auth.CodeEmailTaken).With("email", key).Wrap(auth.ErrDuplicateEmail)
	}

	now := s.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	s.byID[account.ID] = &stored
	s.byEmail[key] = account.ID
	return nil
}

// GetByID returns a copy of the account with id.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, oops.Code(auth.CodeAccountNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	out := *a
	return &out, nil
}

// GetByEmail returns a copy of the account with the normalized email.
func (s *AccountStore) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	key := auth.NormalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[key]
	if !ok {
		return nil, oops.Code(auth.CodeAccountNotFound).With("email", key).Wrap(auth.ErrNotFound)
	}
	out := *s.byID[id]
	return &out, nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
