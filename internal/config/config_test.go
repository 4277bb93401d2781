// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/pkg/errutil"
)

func TestMain(m *testing.M) {
	// Keep a real ~/.config/usersvc/config.yaml out of the tests.
	dir, err := os.MkdirTemp("", "usersvc-config-test-*")
	if err != nil {
		panic(err)
	}
	os.Setenv("XDG_CONFIG_HOME", dir) //nolint:errcheck,gosec // test setup
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usersvc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, auth.DefaultSessionTTL, cfg.Sessions.TTL)
	assert.Equal(t, auth.DefaultArgon2Params, cfg.Hashing.Params())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
log:
  format: text
  level: debug
storage:
  driver: sqlite
  sqlite_path: /var/lib/usersvc/users.db
sessions:
  ttl: 2h
hashing:
  workers: 3
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/usersvc/users.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 3, cfg.Hashing.Workers)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadHeaderTimeout)
	assert.True(t, cfg.Storage.AutoMigrate)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "http:\n  addr: \":9090\"\n")
	t.Setenv("USERSVC_HTTP__ADDR", ":7070")
	t.Setenv("USERSVC_SESSIONS__TTL", "45m")
	t.Setenv("USERSVC_HASHING__WORKERS", "2")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 45*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, 2, cfg.Hashing.Workers)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("USERSVC_HTTP__ADDR", ":7070")
	t.Setenv("USERSVC_LOG__LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http-addr", ":6060", "--session-ttl", "30m"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	// Unchanged flags do not clobber lower layers.
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	t.Setenv("USERSVC_STORAGE__DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://usersvc@localhost/usersvc")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://usersvc@localhost/usersvc", cfg.Storage.PostgresURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_InvalidResult(t *testing.T) {
	t.Setenv("USERSVC_STORAGE__DRIVER", "mongodb")
	_, err := Load("", nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "key", "storage.driver")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantKey string
	}{
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"zero read header timeout", func(c *Config) { c.HTTP.ReadHeaderTimeout = 0 }, "http.read_header_timeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.postgres_url"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.SQLitePath = "" }, "storage.sqlite_path"},
		{"unknown session store", func(c *Config) { c.Sessions.Store = "memcached" }, "sessions.store"},
		{"redis without addr", func(c *Config) { c.Sessions.Store = SessionStoreRedis; c.Redis.Addr = "" }, "redis.addr"},
		{"zero ttl", func(c *Config) { c.Sessions.TTL = 0 }, "sessions.ttl"},
		{"negative grace", func(c *Config) { c.Sessions.GracePeriod = -time.Second }, "sessions.grace_period"},
		{"zero sweep interval", func(c *Config) { c.Sessions.SweepInterval = 0 }, "sessions.sweep_interval"},
		{"negative workers", func(c *Config) { c.Hashing.Workers = -1 }, "hashing.workers"},
		{"tiny memory", func(c *Config) { c.Hashing.MemoryKiB = 8 }, "hashing.memory_kib"},
		{"zero iterations", func(c *Config) { c.Hashing.Iterations = 0 }, "hashing.iterations"},
		{"zero parallelism", func(c *Config) { c.Hashing.Parallelism = 0 }, "hashing.parallelism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.wantKey)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "storage.postgres_url", envKey("USERSVC_STORAGE__POSTGRES_URL"))
	assert.Equal(t, "http.read_header_timeout", envKey("USERSVC_HTTP__READ_HEADER_TIMEOUT"))
}

func TestLoad_FallsBackToXDGConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	dir := filepath.Join(home, "usersvc")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("http:\n  addr: \":7070\"\n"), 0o600))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestDefault_SQLitePathUsesXDGDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/srv/data")
	assert.Equal(t, "/srv/data/usersvc/usersvc.db", Default().Storage.SQLitePath)
}
