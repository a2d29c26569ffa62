// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/config"
	"github.com/lovelog/lovelog/internal/logging"
	"github.com/lovelog/lovelog/internal/observability"
	"github.com/lovelog/lovelog/internal/settings"
	"github.com/lovelog/lovelog/internal/web"
	"github.com/lovelog/lovelog/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the lovelog API server. Secrets are read from the environment
(DATABASE_URL, SESSION_SECRET, REDIS_PASSWORD) or a .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, deps)
		},
	}
}

// runServe starts the API and observability servers and blocks until a
// signal arrives, ctx is cancelled or a server fails.
func runServe(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting lovelog",
		"http_addr", cfg.HTTP.Addr,
		"session_store", cfg.Session.Store,
		"expiry_source", cfg.Session.ExpirySource,
	)

	backend, err := deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, backend.readiness(), logger)
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	api, err := buildAPI(ctx, cfg, backend, deps, metrics, logger)
	if err != nil {
		stopAll(logger, obsServer, nil)
		return err
	}
	apiErrChan, err := api.Start()
	if err != nil {
		stopAll(logger, obsServer, nil)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("lovelog listening on " + api.Addr())
	logger.Info("lovelog ready", "addr", api.Addr())
	if deps.ServeReady != nil {
		deps.ServeReady(api.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopAll(logger, obsServer, api)
	logger.Info("shutdown complete")
	return serverFailure(ctx)
}

// serverFailure returns the error that made a server trigger the shutdown,
// or nil when the shutdown came from a signal or the caller's context.
func serverFailure(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

// buildAPI wires the auth services into the HTTP server and makes sure an
// encryption key exists.
func buildAPI(ctx context.Context, cfg *config.Config, backend *Backend, deps *Deps, metrics *observability.Metrics, logger *slog.Logger) (*web.Server, error) {
	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithClock(deps.Now),
		auth.WithSessionLifetime(cfg.Session.Lifetime),
	}

	authority, err := auth.NewAuthority(backend.Credentials, backend.Sessions, deps.Hasher, opts...)
	if err != nil {
		return nil, err
	}
	source, err := auth.ParseExpirySource(cfg.Session.ExpirySource)
	if err != nil {
		return nil, err
	}
	enforcer, err := auth.NewVisitorExpiryEnforcer(backend.Credentials, backend.Sessions, source, opts...)
	if err != nil {
		return nil, err
	}
	passwords, err := auth.NewPasswordManager(backend.Credentials, backend.Sessions, deps.Hasher, opts...)
	if err != nil {
		return nil, err
	}
	settingsSvc, err := settings.NewService(backend.Settings, backend.Credentials,
		settings.WithLogger(logger),
		settings.WithClock(deps.Now),
	)
	if err != nil {
		return nil, err
	}

	if _, err := passwords.EnsureEncryptionKey(ctx); err != nil {
		return nil, err
	}
	status, err := passwords.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Couple.IsSet {
		logger.Warn("couple password is not set; run 'lovelog password set-couple' before logging in")
	}

	return web.NewServer(web.Config{
		Addr:           cfg.HTTP.Addr,
		CookieName:     cfg.HTTP.CookieName,
		CookieSecure:   cfg.HTTP.CookieSecure,
		SessionSecret:  []byte(cfg.Secrets.SessionSecret),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, web.Deps{
		Authority: authority,
		Enforcer:  enforcer,
		Gate:      auth.NewGate(auth.WithLogger(logger)),
		Passwords: passwords,
		Settings:  settingsSvc,
		Metrics:   metrics,
		Logger:    logger,
		Now:       deps.Now,
	})
}

func stopAll(logger *slog.Logger, obsServer *observability.Server, api *web.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping api server", "error", err)
		}
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}

// monitorServerErrors cancels ctx with the server's error when it reports a
// fatal one, so serve exits non-zero.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			failure := oops.Code("SERVER_FAILED").With("server", serverName).Wrap(err)
			errutil.LogError(ctx, slog.Default(), "server error, triggering shutdown", failure)
			cancel(failure)
		}
	case <-ctx.Done():
	}
}
