// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/auth/memory"
	authpg "github.com/lovelog/lovelog/internal/auth/postgres"
	authredis "github.com/lovelog/lovelog/internal/auth/redis"
	"github.com/lovelog/lovelog/internal/config"
	"github.com/lovelog/lovelog/internal/settings"
	settingspg "github.com/lovelog/lovelog/internal/settings/postgres"
	"github.com/lovelog/lovelog/internal/store"
)

// Backend bundles the stores every command works against.
type Backend struct {
	Credentials auth.CredentialStore
	Sessions    auth.SessionRepository
	Settings    settings.Repository

	// LocalSessions is set when Sessions lives in this process only, so a
	// running server's sessions are out of reach.
	LocalSessions bool

	// Ready reports whether every store answers. Nil means always ready.
	Ready func(ctx context.Context) error
	// Close releases connections. Nil is a no-op.
	Close func()
}

func (b *Backend) close() {
	if b.Close != nil {
		b.Close()
	}
}

// readiness adapts Ready to the observability readiness check.
func (b *Backend) readiness() func() bool {
	return func() bool {
		if b.Ready == nil {
			return true
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return b.Ready(ctx) == nil
	}
}

// openBackend connects PostgreSQL and the configured session store.
// Credentials and settings always live in PostgreSQL.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if err := requireDatabaseURL(cfg); err != nil {
		return nil, err
	}

	opts := store.DefaultConnectOptions()
	opts.Logger = logger
	pool, err := store.Connect(ctx, cfg.Secrets.DatabaseURL, opts)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")

	b := &Backend{
		Credentials: authpg.NewCredentialRepository(pool),
		Settings:    settingspg.NewRepository(pool),
		Ready:       pool.Ping,
		Close:       pool.Close,
	}

	switch cfg.Session.Store {
	case config.StoreRedis:
		client, err := authredis.Dial(ctx, authredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Secrets.RedisPassword,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		b.Sessions = authredis.NewSessionStore(client, cfg.Redis.Prefix)
		b.Ready = func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return client.Ping(ctx).Err()
		}
		b.Close = func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
			pool.Close()
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	case config.StoreMemory:
		logger.Warn("sessions are kept in memory and end on restart")
		b.Sessions = memory.NewSessionStore()
		b.LocalSessions = true
	default:
		b.Sessions = authpg.NewSessionRepository(pool)
	}

	return b, nil
}

// adminFunc is the body of a command that works on the stores.
type adminFunc func(ctx context.Context, cmd *cobra.Command, b *Backend, logger *slog.Logger) error

// withBackend loads config, opens the stores, runs fn and closes them again.
// Admin commands need DATABASE_URL but not the server's cookie secret.
func withBackend(cmd *cobra.Command, deps *Deps, fn adminFunc) error {
	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return err
	}
	logger, err := commandLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	if err := fn(ctx, cmd, b, logger); err != nil {
		printDetails(cmd, err)
		return err
	}
	return nil
}

// errLocalSessions refuses a session maintenance command that would only see
// this process's empty in-memory store.
func errLocalSessions(operation string) error {
	return oops.Code("CLI_LOCAL_SESSION_STORE").
		With("operation", operation).
		Errorf("session.store is memory: sessions live inside the running server and cannot be reached from here")
}

// errDetails returns the validation messages attached to err.
func errDetails(err error) []string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	details, _ := oopsErr.Context()[auth.DetailsKey].([]string)
	return details
}

// newPasswordManager builds the manager the admin commands share.
func newPasswordManager(b *Backend, deps *Deps, logger *slog.Logger) (*auth.PasswordManager, error) {
	return auth.NewPasswordManager(b.Credentials, b.Sessions, deps.Hasher,
		auth.WithLogger(logger),
		auth.WithClock(deps.Now),
	)
}
