// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package auth provides the authentication core of the user service.
//
// # Domain Types
//
// Domain types (Account, Session) should be created using their constructors:
//   - NewAccount - creates an Account with a fresh ID and normalized email
//   - NewSession - creates a Session with validated account and expiry
//
// Repository implementations receive pre-validated types from these constructors.
// Backends live in the memory, postgres, sqlite and redis subpackages.
//
// # Services
//
//   - PasswordHasher / HashPool - argon2id hashing bounded by a worker semaphore
//   - SessionManager - issues, validates, revokes and sweeps sessions
//   - Service - signup, login and logout with input validation
//
// Errors carry oops codes and wrap the package sentinels; use KindOf to
// classify an error for a transport layer.
package auth
