// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"path/filepath"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sp-platform/user-service/internal/config"
	"github.com/sp-platform/user-service/internal/store"
	"github.com/sp-platform/user-service/internal/xdg"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect schema migrations for the configured
PostgreSQL or SQLite database.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version without running any migration.
Use only to clear a dirty state after repairing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: runMigrateForce,
	})

	return cmd
}

// migrationURL returns the golang-migrate URL for the configured database.
func migrationURL(cfg *config.Config) (string, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return cfg.Storage.PostgresURL, nil
	case config.DriverSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.Storage.SQLitePath)); err != nil {
			return "", err //nolint:wrapcheck // already carries DIR_CREATE_FAILED
		}
		return store.SQLiteURL(cfg.Storage.SQLitePath), nil
	default:
		return "", oops.Code("CONFIG_INVALID").
			With("key", "storage.driver").
			Errorf("storage driver %q has no schema to migrate", cfg.Storage.Driver)
	}
}

func openMigrator(cmd *cobra.Command) (*store.Migrator, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, oops.With("operation", "load configuration").Wrap(err)
	}
	url, err := migrationURL(cfg)
	if err != nil {
		return nil, err
	}
	migrator, err := store.NewMigrator(url)
	if err != nil {
		return nil, oops.Code("MIGRATION_FAILED").With("driver", cfg.Storage.Driver).Wrap(err)
	}
	return migrator, nil
}

func closeMigrator(cmd *cobra.Command, m *store.Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrf("warning: closing migrator: %v\n", err)
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	pending, err := m.PendingMigrations()
	if err != nil {
		return err //nolint:wrapcheck // already carries a migration code
	}
	if len(pending) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, _, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already carries MIGRATION_VERSION_FAILED
	}
	if version == 0 {
		cmd.Println("No migrations to roll back")
		return nil
	}

	if err := m.Steps(-1); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migration").Wrap(err)
	}
	cmd.Printf("Rolled back migration %d\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already carries MIGRATION_VERSION_FAILED
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err //nolint:wrapcheck // already carries a migration code
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err //nolint:wrapcheck // already carries a migration code
	}

	cmd.Printf("Dialect: %s\n", m.Dialect())
	cmd.Printf("Current version: %d\n", version)
	if dirty {
		cmd.Println("WARNING: database is dirty, a previous migration failed part way")
	}
	printMigrations(cmd, m.Dialect(), "Applied", applied)
	printMigrations(cmd, m.Dialect(), "Pending", pending)
	return nil
}

func printMigrations(cmd *cobra.Command, dialect store.Dialect, label string, versions []uint) {
	cmd.Printf("%s: %d\n", label, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(dialect, v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		cmd.Printf("  %s\n", name)
	}
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return err //nolint:wrapcheck // already carries MIGRATION_FORCE_FAILED
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}
