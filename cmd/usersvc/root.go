// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/sp-platform/user-service/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the user service CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usersvc",
		Short: "User account and session service",
		Long: `usersvc registers user accounts and manages login sessions
over a small JSON HTTP API backed by PostgreSQL, SQLite or memory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
