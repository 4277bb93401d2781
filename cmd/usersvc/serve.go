// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/sp-platform/user-service/internal/api"
	"github.com/sp-platform/user-service/internal/auth"
	"github.com/sp-platform/user-service/internal/config"
	"github.com/sp-platform/user-service/internal/logging"
	"github.com/sp-platform/user-service/pkg/errutil"
)

const serviceName = "usersvc"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API for signup, login, logout and session lookup,
together with the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
}

func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err //nolint:wrapcheck // already carries LOG_LEVEL_INVALID
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info("starting user service",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"storage_driver", cfg.Storage.Driver,
		"log_level", cfg.Log.Level,
	)

	b, err := openBackend(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	sessions, svc, err := buildService(cfg, b, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	}

	handlerOpts := []api.HandlerOption{api.WithLogger(logger)}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, b.Ready)
		auth.RegisterMetrics(obsServer.Registry())
		handlerOpts = append(handlerOpts, api.WithObserver(obsServer.Metrics()))

		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("STARTUP_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	stopObservability := func() {
		if obsServer == nil {
			return
		}
		sctx, scancel := shutdownCtx()
		defer scancel()
		if err := obsServer.Stop(sctx); err != nil {
			errutil.LogWarn(sctx, logger, "error stopping observability server", err)
		}
	}

	handler, err := api.NewHandler(svc, handlerOpts...)
	if err != nil {
		stopObservability()
		return err //nolint:wrapcheck // already carries API_HANDLER_INVALID
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler.Routes(), cfg.HTTP.ReadHeaderTimeout, logger)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopObservability()
		return oops.Code("STARTUP_FAILED").With("server", "api").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sessions.RunSweeper(ctx, cfg.Sessions.SweepInterval)
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("User service listening on %s\n", apiServer.Addr())
	logger.Info("user service ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	cancel()

	sctx, scancel := shutdownCtx()
	defer scancel()
	if err := apiServer.Stop(sctx); err != nil {
		errutil.LogWarn(sctx, logger, "error stopping api server", err)
	}
	stopObservability()
	<-sweeperDone

	logger.Info("shutdown complete")
	return nil
}

// buildService wires the hasher, session manager and auth service for cfg.
func buildService(cfg *config.Config, b *backend, logger *slog.Logger) (*auth.SessionManager, *auth.Service, error) {
	sessions, err := auth.NewSessionManager(b.sessions,
		auth.WithSessionTTL(cfg.Sessions.TTL),
		auth.WithSweepGrace(cfg.Sessions.GracePeriod),
		auth.WithSessionLogger(logger),
	)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // already carries SESSION_MANAGER_INVALID
	}

	params := cfg.Hashing.Params()
	hasher := auth.NewArgon2idHasherWithParams(params)
	opts := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithHashWorkers(cfg.Hashing.Workers),
	}
	if params != auth.DefaultArgon2Params {
		dummy, err := auth.NewDummyHash(hasher)
		if err != nil {
			return nil, nil, err //nolint:wrapcheck // already carries AUTH_DUMMY_HASH_FAILED
		}
		opts = append(opts, auth.WithDummyHash(dummy))
	}

	svc, err := auth.NewAuthService(b.accounts, sessions, hasher, opts...)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // already carries AUTH_SERVICE_INVALID
	}
	return sessions, svc, nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
