// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Input constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 1024
	MaxEmailLength    = 254
	MaxNameLength     = 100
)

var validate = validator.New()

// FieldError is a single field/reason pair.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationErrors lists every problem found in a request, in field order.
type ValidationErrors []FieldError

// Error joins the pairs as "field: reason, field: reason".
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Reason)
	}
	return strings.Join(parts, ", ")
}

// Fields returns the names of the fields that failed.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for _, fe := range v {
		fields = append(fields, fe.Field)
	}
	return fields
}

func (v *ValidationErrors) add(field, reason string) {
	*v = append(*v, FieldError{Field: field, Reason: reason})
}

// SignUpRequest carries the signup fields.
type SignUpRequest struct {
	Email       string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Password    string
}

// LoginRequest carries the login fields.
type LoginRequest struct {
	Email    string
	Password string
}

// ValidateSignUp checks a signup request against the input rules.
// Returns nil when the request is valid.
func ValidateSignUp(req SignUpRequest, now time.Time) ValidationErrors {
	var errs ValidationErrors
	validateEmail(&errs, req.Email)
	validateName(&errs, "firstName", req.FirstName)
	validateName(&errs, "lastName", req.LastName)
	if req.DateOfBirth != nil && req.DateOfBirth.After(now) {
		errs.add("dob", "must not be in the future")
	}
	switch n := utf8.RuneCountInString(req.Password); {
	case n == 0:
		errs.add("password", "must not be empty")
	case n < MinPasswordLength:
		errs.add("password", "must be at least 8 characters")
	case n > MaxPasswordLength:
		errs.add("password", "must be at most 1024 characters")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateLogin checks the email shape and that a password was given.
// Password length rules are not applied so older passwords can still log in.
func ValidateLogin(req LoginRequest) ValidationErrors {
	var errs ValidationErrors
	validateEmail(&errs, req.Email)
	if req.Password == "" {
		errs.add("password", "must not be empty")
	} else if utf8.RuneCountInString(req.Password) > MaxPasswordLength {
		errs.add("password", "must be at most 1024 characters")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateLogout checks that a session token was supplied.
func ValidateLogout(token string) ValidationErrors {
	if strings.TrimSpace(token) == "" {
		return ValidationErrors{{Field: "token", Reason: "must not be empty"}}
	}
	return nil
}

func validateEmail(errs *ValidationErrors, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs.add("email", "must not be empty")
	case len(email) > MaxEmailLength:
		errs.add("email", "must be at most 254 characters")
	case validate.Var(email, "email") != nil:
		errs.add("email", "must be a well-formed email address")
	}
}

func validateName(errs *ValidationErrors, field, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		errs.add(field, "must not be empty")
	case utf8.RuneCountInString(name) > MaxNameLength:
		errs.add(field, "must be at most 100 characters")
	}
}
