// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package sqlite provides SQLite-backed account and session repositories
// for single-node deployments. Timestamps are stored as unix nanoseconds.
package sqlite
