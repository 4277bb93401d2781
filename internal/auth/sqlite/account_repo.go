// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sp-platform/user-service/internal/auth"
)

const dateLayout = "2006-01-02"

const accountColumns = `id, email, password_hash, first_name, last_name, date_of_birth, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using SQLite.
type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

// Create inserts the account. The UNIQUE COLLATE NOCASE email column makes
// the duplicate check part of the insert.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	now := r.now().UTC()

	var dob sql.NullString
	if account.DateOfBirth != nil {
		dob = sql.NullString{String: account.DateOfBirth.Format(dateLayout), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, first_name, last_name, date_of_birth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		dob,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeEmailTaken).
				With("email", account.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive via the column collation).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

func scanAccount(row *sql.Row) (*auth.Account, error) {
	var (
		idStr            string
		a                auth.Account
		dob              sql.NullString
		created, updated int64
	)
	err := row.Scan(&idStr, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &dob, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}

	if a.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if dob.Valid {
		d, err := time.Parse(dateLayout, dob.String)
		if err != nil {
			return nil, oops.Code("ACCOUNT_INVALID_DOB").With("date_of_birth", dob.String).Wrap(err)
		}
		a.DateOfBirth = &d
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
