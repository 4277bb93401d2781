// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors wrapped by every backend and by the Service.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an account already uses the normalized email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials is returned for any failed login, whichever factor failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrSessionInvalid is returned when a token is unknown, revoked or expired.
	ErrSessionInvalid = errors.New("session is invalid or expired")
)

// Error codes attached to returned errors.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeEmailTaken         = "ACCOUNT_EMAIL_TAKEN"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
)

// Kind classifies an error for the boundary layer.
type Kind int

// Error kinds, in the order the boundary reports them.
const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindInvalidCredentials
	KindInvalidOrExpired
	KindNotFound
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidOrExpired:
		return "invalid_or_expired"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything not recognized is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var verrs ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return KindInvalidInput
	case errors.Is(err, ErrDuplicateEmail):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrSessionInvalid):
		return KindInvalidOrExpired
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// invalidCredentials is the single error value returned for every failed login.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}
