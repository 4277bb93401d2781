// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package memory provides process-local account and session stores.
// Data does not survive a restart; it backs tests and the "memory" storage driver.
package memory
