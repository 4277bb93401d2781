// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sp-platform/user-service/pkg/errutil"
)

// dummyPasswordHash is verified when an email is unknown so that a missing account
// costs the same as a wrong password. It matches DefaultArgon2Params; services built
// with other parameters should pass WithDummyHash(NewDummyHash(hasher)).
//
//nolint:gosec // G101: intentionally fake hash, never matches any password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// LoginResult is returned by a successful LogIn.
type LoginResult struct {
	Token     string
	SessionID ulid.ULID
	AccountID ulid.ULID
	ExpiresAt time.Time
}

// Service provides signup, login and logout.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	accounts    AccountRepository
	sessions    *SessionManager
	hasher      *HashPool
	logger      *slog.Logger
	now         func() time.Time
	dummyHash   string
	hashWorkers int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithHashWorkers bounds concurrent hash/verify calls. Zero means runtime.NumCPU().
func WithHashWorkers(n int) ServiceOption {
	return func(s *Service) { s.hashWorkers = n }
}

// WithDummyHash sets the hash verified for unknown emails.
func WithDummyHash(hash string) ServiceOption {
	return func(s *Service) { s.dummyHash = hash }
}

// WithServiceClock overrides the time source used for input validation.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewAuthService creates a new Service.
func NewAuthService(accounts AccountRepository, sessions *SessionManager, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}

	s := &Service{
		accounts:  accounts,
		sessions:  sessions,
		logger:    slog.Default(),
		now:       time.Now,
		dummyHash: dummyPasswordHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	s.hasher = NewHashPool(hasher, s.hashWorkers)
	return s, nil
}

// NewDummyHash hashes a random throwaway password with hasher, for WithDummyHash.
func NewDummyHash(hasher PasswordHasher) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	return hasher.Hash(hex.EncodeToString(buf)) //nolint:wrapcheck // hasher errors already carry oops codes
}

// SignUp registers a new account.
// Invalid input is rejected before the hasher or the account store is touched.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (account *Account, err error) {
	defer func() { recordOperation(OpSignUp, err) }()

	if verrs := ValidateSignUp(req, s.now()); verrs != nil {
		s.logger.DebugContext(ctx, "signup rejected", "fields", verrs.Fields())
		return nil, oops.Code(CodeInvalidInput).Wrap(verrs)
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err = NewAccount(req.Email, hash, req.FirstName, req.LastName, req.DateOfBirth)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "build account").
			Wrap(err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeEmailTaken).Wrap(err)
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String())
	return account, nil
}

// LogIn authenticates an email/password pair and issues a session.
// An unknown email and a wrong password produce the same error after the same amount of work.
func (s *Service) LogIn(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	defer func() { recordOperation(OpLogIn, err) }()

	if verrs := ValidateLogin(req); verrs != nil {
		return nil, oops.Code(CodeInvalidInput).Wrap(verrs)
	}

	account, lookupErr := s.accounts.GetByEmail(ctx, NormalizeEmail(req.Email))

	targetHash := s.dummyHash
	accountExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.PasswordHash
		accountExists = true
	}

	// Always verify, even for unknown accounts.
	valid, verifyErr := s.hasher.Verify(ctx, req.Password, targetHash)
	if verifyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "verify password").
				Wrap(verifyErr)
		}
		if accountExists {
			errutil.LogError(s.logger, "stored password hash is unreadable",
				oops.With("account_id", account.ID.String()).Wrap(verifyErr))
		}
		return nil, invalidCredentials()
	}

	if !accountExists || !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.logger.InfoContext(ctx, "account password hash uses outdated parameters",
			"account_id", account.ID.String())
	}

	session, token, err := s.sessions.Issue(ctx, account.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "session issued",
		"account_id", account.ID.String(),
		"session_id", session.ID.String(),
		"expires_at", session.ExpiresAt,
	)

	return &LoginResult{
		Token:     token,
		SessionID: session.ID,
		AccountID: account.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// LogOut revokes the session identified by token.
// A token that is unknown, expired or already revoked returns a NotFound error,
// which callers may treat as a successful no-op.
func (s *Service) LogOut(ctx context.Context, token string) (err error) {
	defer func() { recordOperation(OpLogOut, err) }()

	if verrs := ValidateLogout(token); verrs != nil {
		return oops.Code(CodeInvalidInput).Wrap(verrs)
	}

	if err := s.sessions.Revoke(ctx, strings.TrimSpace(token)); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "logout for unknown or inactive session")
			return err
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke session").
			Wrap(err)
	}
	return nil
}

// ValidateSession returns the active session for token.
func (s *Service) ValidateSession(ctx context.Context, token string) (session *Session, err error) {
	defer func() { recordOperation(OpValidate, err) }()
	return s.sessions.Validate(ctx, strings.TrimSpace(token))
}

// CurrentAccount returns the account owning the active session for token.
func (s *Service) CurrentAccount(ctx context.Context, token string) (*Account, *Session, error) {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Accounts are never deleted, so an orphaned session is treated as invalid.
			return nil, nil, oops.Code(CodeSessionInvalid).
				With("session_id", session.ID.String()).
				Wrap(ErrSessionInvalid)
		}
		return nil, nil, oops.Code("AUTH_ACCOUNT_LOOKUP_FAILED").
			With("operation", "get account by id").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}
	return account, session, nil
}
