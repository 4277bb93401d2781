// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package postgres implements the auth repositories on PostgreSQL.
// The schema lives in internal/store/migrations/postgres.
package postgres
