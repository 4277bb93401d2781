// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

// Package config loads service configuration from defaults, an optional YAML
// file, the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/internal/logging"
	"github.com/sp-platform/user-service/internal/xdg"
)

// EnvPrefix prefixes every environment override. Nested keys use "__",
// e.g. USERSVC_STORAGE__POSTGRES_URL sets storage.postgres_url.
const EnvPrefix = "USERSVC_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SessionStoreRedis keeps sessions in Redis instead of the account database.
const SessionStoreRedis = "redis"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Storage  StorageConfig  `koanf:"storage"`
	Sessions SessionsConfig `koanf:"sessions"`
	Redis    RedisConfig    `koanf:"redis"`
	Hashing  HashingConfig  `koanf:"hashing"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level"`
}

// StorageConfig selects and configures the account store.
type StorageConfig struct {
	Driver      string `koanf:"driver" jsonschema:"enum=memory,enum=postgres,enum=sqlite"`
	PostgresURL string `koanf:"postgres_url"`
	SQLitePath  string `koanf:"sqlite_path"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// SessionsConfig configures session lifetime and cleanup.
type SessionsConfig struct {
	Store         string        `koanf:"store"`
	TTL           time.Duration `koanf:"ttl"`
	GracePeriod   time.Duration `koanf:"grace_period"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// HashingConfig configures the password KDF and its worker bound.
type HashingConfig struct {
	Workers     int    `koanf:"workers" jsonschema:"minimum=0"`
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
}

// Params returns the argon2id parameters.
func (h HashingConfig) Params() auth.Argon2Params {
	return auth.Argon2Params{
		MemoryKiB:   h.MemoryKiB,
		Iterations:  h.Iterations,
		Parallelism: h.Parallelism,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: logging.FormatJSON, Level: "info"},
		Storage: StorageConfig{
			Driver:      DriverMemory,
			SQLitePath:  xdg.SQLitePath(),
			AutoMigrate: true,
		},
		Sessions: SessionsConfig{
			TTL:           auth.DefaultSessionTTL,
			GracePeriod:   auth.DefaultSweepGrace,
			SweepInterval: auth.DefaultSweepPeriod,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Hashing: HashingConfig{
			MemoryKiB:   auth.DefaultArgon2Params.MemoryKiB,
			Iterations:  auth.DefaultArgon2Params.Iterations,
			Parallelism: auth.DefaultArgon2Params.Parallelism,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":      "http.addr",
	"metrics-addr":   "metrics.addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"storage-driver": "storage.driver",
	"postgres-url":   "storage.postgres_url",
	"sqlite-path":    "storage.sqlite_path",
	"auto-migrate":   "storage.auto_migrate",
	"session-store":  "sessions.store",
	"session-ttl":    "sessions.ttl",
	"redis-addr":     "redis.addr",
	"hash-workers":   "hashing.workers",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("storage-driver", d.Storage.Driver, "account store (memory, postgres, sqlite)")
	fs.String("postgres-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL)")
	fs.String("sqlite-path", d.Storage.SQLitePath, "SQLite database file")
	fs.Bool("auto-migrate", d.Storage.AutoMigrate, "apply pending migrations on startup")
	fs.String("session-store", d.Sessions.Store, "session store override (redis)")
	fs.Duration("session-ttl", d.Sessions.TTL, "session lifetime")
	fs.String("redis-addr", d.Redis.Addr, "Redis address for the redis session store")
	fs.Int("hash-workers", d.Hashing.Workers, "concurrent password hash operations (0 = NumCPU)")
}

// Load builds a Config. flags may be nil. An empty path falls back to
// xdg.ConfigFile() when that file exists.
// A .env file in the working directory is read first if present.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", ".env").Wrap(err)
	}

	if path == "" {
		if _, err := os.Stat(xdg.ConfigFile()); err == nil {
			path = xdg.ConfigFile()
		}
	}

	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.With("source", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.Storage.PostgresURL == "" {
		cfg.Storage.PostgresURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns USERSVC_STORAGE__POSTGRES_URL into storage.postgres_url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s: %s", key, msg)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "must not be empty")
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		return invalid("http.read_header_timeout", c.HTTP.ReadHeaderTimeout, "must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", c.HTTP.ShutdownTimeout, "must be positive")
	}
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", c.Log.Format, "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "must be debug, info, warn or error")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return invalid("storage.postgres_url", "", "required for the postgres driver (or set DATABASE_URL)")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return invalid("storage.sqlite_path", "", "required for the sqlite driver")
		}
	default:
		return invalid("storage.driver", c.Storage.Driver, "must be memory, postgres or sqlite")
	}

	switch c.Sessions.Store {
	case "":
	case SessionStoreRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "", "required for the redis session store")
		}
	default:
		return invalid("sessions.store", c.Sessions.Store, "must be empty or redis")
	}
	if c.Sessions.TTL <= 0 {
		return invalid("sessions.ttl", c.Sessions.TTL, "must be positive")
	}
	if c.Sessions.GracePeriod < 0 {
		return invalid("sessions.grace_period", c.Sessions.GracePeriod, "must not be negative")
	}
	if c.Sessions.SweepInterval <= 0 {
		return invalid("sessions.sweep_interval", c.Sessions.SweepInterval, "must be positive")
	}

	if c.Hashing.Workers < 0 {
		return invalid("hashing.workers", c.Hashing.Workers, "must not be negative")
	}
	if c.Hashing.MemoryKiB < 8*uint32(c.Hashing.Parallelism) || c.Hashing.MemoryKiB == 0 {
		return invalid("hashing.memory_kib", c.Hashing.MemoryKiB, "must be at least 8 KiB per lane")
	}
	if c.Hashing.Iterations == 0 {
		return invalid("hashing.iterations", c.Hashing.Iterations, "must be positive")
	}
	if c.Hashing.Parallelism == 0 {
		return invalid("hashing.parallelism", c.Hashing.Parallelism, "must be positive")
	}
	return nil
}
