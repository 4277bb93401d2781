// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account represents a registered identity.
type Account struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	DateOfBirth  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail returns the form used for uniqueness checks and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount creates an Account with a fresh ID.
// The email is stored normalized. Timestamps are left for the repository to set.
func NewAccount(email, passwordHash, firstName, lastName string, dateOfBirth *time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, oops.Code("ACCOUNT_INVALID_NAME").Errorf("first and last name cannot be empty")
	}

	var dob *time.Time
	if dateOfBirth != nil {
		d := truncateToDate(*dateOfBirth)
		dob = &d
	}

	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		DateOfBirth:  dob,
	}, nil
}

// FullName returns "First Last".
func (a *Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AccountRepository manages account persistence.
// There is no update or delete: accounts are only ever created.
type AccountRepository interface {
	// Create stores a new account and sets its CreatedAt/UpdatedAt.
	// Returns ErrDuplicateEmail if the normalized email is already taken;
	// the check and the insert are atomic.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)
}
