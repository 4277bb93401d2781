// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-platform/user-service/internal/config"
	"github.com/sp-platform/user-service/pkg/errutil"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	t.Cleanup(func() { configFile = "" })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrate_SQLiteLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "users.db")
	flags := []string{"--storage-driver", "sqlite", "--sqlite-path", dbPath}

	out, err := runRoot(t, append([]string{"migrate", "status"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Pending: 2")
	assert.Contains(t, out, "000001_create_accounts")

	out, err = runRoot(t, append([]string{"migrate", "up"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Applying 2 migration(s)")
	assert.Contains(t, out, "Migrations completed successfully")

	out, err = runRoot(t, append([]string{"migrate", "up"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")

	out, err = runRoot(t, append([]string{"migrate", "status"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")
	assert.Contains(t, out, "Applied: 2")
	assert.Contains(t, out, "Pending: 0")

	out, err = runRoot(t, append([]string{"migrate", "down"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back migration 2")

	out, err = runRoot(t, append([]string{"migrate", "status"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")
	assert.Contains(t, out, "000002_create_sessions")
}

func TestMigrate_DownOnEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "users.db")

	out, err := runRoot(t, "migrate", "down", "--storage-driver", "sqlite", "--sqlite-path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No migrations to roll back")
}

func TestMigrate_Force(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "users.db")
	flags := []string{"--storage-driver", "sqlite", "--sqlite-path", dbPath}

	out, err := runRoot(t, append([]string{"migrate", "force", "1"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Forced schema version to 1")

	out, err = runRoot(t, append([]string{"migrate", "status"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")
}

func TestMigrate_ForceRejectsNonNumericVersion(t *testing.T) {
	_, err := runRoot(t, "migrate", "force", "abc", "--storage-driver", "sqlite", "--sqlite-path", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrate_MemoryDriverHasNoSchema(t *testing.T) {
	_, err := runRoot(t, "migrate", "up", "--storage-driver", "memory")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrationURL(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "users.db")

	tests := []struct {
		name    string
		storage config.StorageConfig
		want    string
		wantErr bool
	}{
		{
			name:    "postgres uses the configured url",
			storage: config.StorageConfig{Driver: config.DriverPostgres, PostgresURL: "postgres://u:p@db/users"},
			want:    "postgres://u:p@db/users",
		},
		{
			name:    "sqlite builds a sqlite3 url",
			storage: config.StorageConfig{Driver: config.DriverSQLite, SQLitePath: dbPath},
			want:    "sqlite3://" + dbPath,
		},
		{
			name:    "memory is rejected",
			storage: config.StorageConfig{Driver: config.DriverMemory},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage = tt.storage

			got, err := migrationURL(&cfg)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
