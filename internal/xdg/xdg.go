// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package xdg provides XDG Base Directory paths for the user service.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "usersvc"

// ConfigDir returns the XDG config directory for usersvc.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DataDir returns the XDG data directory for usersvc.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the config file read when no --config is given.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// SQLitePath returns the default SQLite database location.
func SQLitePath() string {
	return filepath.Join(DataDir(), "usersvc.db")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("DIR_CREATE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
