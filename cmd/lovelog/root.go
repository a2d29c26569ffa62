// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/config"
	"github.com/lovelog/lovelog/internal/logging"
	"github.com/lovelog/lovelog/internal/store"
	"github.com/lovelog/lovelog/internal/xdg"
)

const serviceName = "lovelog"

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenBackend connects the credential, session and settings stores.
	// Default: openBackend
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// NewMigrator creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// ReadSecret prompts for a secret. confirm asks twice when a terminal is attached.
	// Default: readSecret
	ReadSecret func(cmd *cobra.Command, prompt string, confirm bool) (string, error)

	// Hasher hashes and verifies passwords.
	// Default: auth.NewBcryptHasher
	Hasher auth.PasswordHasher

	// Getenv reads secrets from the environment.
	// Default: os.Getenv
	Getenv func(string) string

	// Now is the clock.
	// Default: time.Now
	Now func() time.Time

	// ServeReady is called with the API address once serve is listening.
	ServeReady func(apiAddr string)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.OpenBackend == nil {
		out.OpenBackend = openBackend
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ReadSecret == nil {
		out.ReadSecret = readSecret
	}
	if out.Hasher == nil {
		out.Hasher = auth.NewBcryptHasher()
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

// Migrator is the subset of store.Migrator the CLI uses.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	AppliedMigrations() ([]uint, error)
	PendingMigrations() ([]uint, error)
	Close() error
}

// NewRootCmd creates the root command for the lovelog CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "lovelog",
		Short: "lovelog - a private blog for two",
		Long: `lovelog serves a personal blog API shared by a couple, with
time-limited visitor access, plus the tools to administer its passwords.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: XDG_CONFIG_HOME/lovelog/config.yaml)")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading secrets (empty disables)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newPasswordCmd(deps))
	cmd.AddCommand(newKeyCmd(deps))
	cmd.AddCommand(newSessionsCmd(deps))
	cmd.AddCommand(newConfigCmd(deps))

	return cmd
}

// loadConfig reads .env, the config file and the flags of cmd.
func loadConfig(cmd *cobra.Command, deps *Deps) (*config.Config, error) {
	flags := cmd.Flags()

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	path, explicit := configPath(cmd)
	return config.Load(config.LoadOptions{
		Path:     path,
		Explicit: explicit,
		Flags:    flags,
		Getenv:   deps.Getenv,
	})
}

// configPath returns the --config file, or the default XDG file when unset.
func configPath(cmd *cobra.Command) (path string, explicit bool) {
	path, _ = cmd.Flags().GetString("config")
	if path != "" {
		return path, true
	}
	// Without a resolvable home there is simply no default file.
	if p, err := xdg.ConfigFile(); err == nil {
		return p, false
	}
	return "", false
}

// commandLogger builds a logger for admin commands that writes to the command's stderr.
func commandLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
}

func requireDatabaseURL(cfg *config.Config) error {
	if cfg.Secrets.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With(auth.DetailsKey, []string{config.EnvDatabaseURL + " is required"}).
			Errorf("%s environment variable is required", config.EnvDatabaseURL)
	}
	return nil
}

// readSecret reads a secret without echo from a terminal, or one line from
// piped input.
func readSecret(cmd *cobra.Command, prompt string, confirm bool) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := readTerminal(cmd, f, prompt)
		if err != nil || !confirm {
			return secret, err
		}
		again, err := readTerminal(cmd, f, "Repeat to confirm: ")
		if err != nil {
			return "", err
		}
		if again != secret {
			return "", oops.Code("CLI_SECRET_MISMATCH").Errorf("passwords do not match")
		}
		return secret, nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("CLI_READ_SECRET_FAILED").With("operation", "read stdin").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readTerminal(cmd *cobra.Command, f *os.File, prompt string) (string, error) {
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), prompt) //nolint:errcheck // prompt only
	b, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(cmd.ErrOrStderr()) //nolint:errcheck // prompt only
	if err != nil {
		return "", oops.Code("CLI_READ_SECRET_FAILED").With("operation", "read terminal").Wrap(err)
	}
	return string(b), nil
}
