// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/config"
	"github.com/lovelog/lovelog/internal/logging"
	"github.com/lovelog/lovelog/pkg/errutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	fs.String("unrelated", "", "not a config flag")
	require.NoError(t, fs.Parse(args))
	return fs
}

func env(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

var validEnv = env(map[string]string{
	config.EnvDatabaseURL:   "postgres://lovelog:pw@localhost/lovelog",
	config.EnvSessionSecret: strings.Repeat("s", 32),
})

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := config.Load(config.LoadOptions{Flags: newFlags(t), Getenv: validEnv})
	require.NoError(t, err)

	assert.Equal(t, config.Default().HTTP, cfg.HTTP)
	assert.Equal(t, auth.DefaultSessionLifetime, cfg.Session.Lifetime)
	assert.Equal(t, "store", cfg.Session.ExpirySource)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenFlags(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":8080"
  allowed_origins:
    - https://blog.example
  cookie_secure: true
session:
  store: redis
  lifetime: 12h
  expiry_source: session
log:
  level: debug
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := config.Load(config.LoadOptions{Path: path, Flags: newFlags(t), Getenv: validEnv})
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.HTTP.Addr)
		assert.Equal(t, []string{"https://blog.example"}, cfg.HTTP.AllowedOrigins)
		assert.True(t, cfg.HTTP.CookieSecure)
		assert.Equal(t, config.StoreRedis, cfg.Session.Store)
		assert.Equal(t, 12*time.Hour, cfg.Session.Lifetime)
		assert.Equal(t, "session", cfg.Session.ExpirySource)
		assert.Equal(t, "debug", cfg.Log.Level)
		// Unset in the file, filled from the flag default.
		assert.Equal(t, "lovelog_session", cfg.HTTP.CookieName)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("changed flags override the file", func(t *testing.T) {
		flags := newFlags(t, "--http-addr=:9090", "--session-lifetime=30m", "--log-level=warn")
		cfg, err := config.Load(config.LoadOptions{Path: path, Flags: flags, Getenv: validEnv})
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.HTTP.Addr)
		assert.Equal(t, 30*time.Minute, cfg.Session.Lifetime)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, config.StoreRedis, cfg.Session.Store)
	})
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	t.Run("implicit path is optional", func(t *testing.T) {
		_, err := config.Load(config.LoadOptions{Path: missing, Getenv: validEnv})
		require.NoError(t, err)
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := config.Load(config.LoadOptions{Path: missing, Explicit: true, Getenv: validEnv})
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "http: [unclosed")
	_, err := config.Load(config.LoadOptions{Path: path, Getenv: validEnv})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_SecretsComeFromEnvOnly(t *testing.T) {
	path := writeFile(t, `
secrets:
  session_secret: from-file
`)
	cfg, err := config.Load(config.LoadOptions{Path: path, Getenv: env(map[string]string{
		config.EnvRedisPassword: "redis-pw",
	})})
	require.NoError(t, err)

	assert.Empty(t, cfg.Secrets.SessionSecret)
	assert.Equal(t, "redis-pw", cfg.Secrets.RedisPassword)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"unknown store", func(c *config.Config) { c.Session.Store = "sqlite" }, "session.store must be postgres, redis or memory"},
		{"short lifetime", func(c *config.Config) { c.Session.Lifetime = time.Second }, "session.lifetime must be at least 1m"},
		{"bad expiry source", func(c *config.Config) { c.Session.ExpirySource = "cookie" }, "session.expiry_source must be store or session"},
		{"redis without addr", func(c *config.Config) { c.Session.Store = config.StoreRedis; c.Redis.Addr = "" }, "redis.addr is required when session.store is redis"},
		{"bad origin", func(c *config.Config) { c.HTTP.AllowedOrigins = []string{"blog.example"} }, "http.allowed_origins entries must be http(s) URLs: blog.example"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format must be json or text"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level must be debug, info, warn or error"},
		{"missing database url", func(c *config.Config) { c.Secrets.DatabaseURL = "" }, "DATABASE_URL is required"},
		{"short session secret", func(c *config.Config) { c.Secrets.SessionSecret = "short" }, "SESSION_SECRET must be at least 32 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(config.LoadOptions{Getenv: validEnv})
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			oopsErr, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.Contains(t, oopsErr.Context()[auth.DetailsKey], tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate()
	require.Error(t, err)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	details, ok := oopsErr.Context()[auth.DetailsKey].([]string)
	require.True(t, ok)
	assert.Len(t, details, 2)
}

func TestRedacted(t *testing.T) {
	cfg, err := config.Load(config.LoadOptions{Getenv: validEnv})
	require.NoError(t, err)

	r := cfg.Redacted()
	assert.Equal(t, logging.Redacted, r.Secrets.DatabaseURL)
	assert.Equal(t, logging.Redacted, r.Secrets.SessionSecret)
	assert.Empty(t, r.Secrets.RedisPassword)
	assert.Equal(t, strings.Repeat("s", 32), cfg.Secrets.SessionSecret, "original is untouched")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOVELOG_TEST_DOTENV=from-file\nLOVELOG_TEST_PRESET=from-file\n"), 0o600))
	t.Setenv("LOVELOG_TEST_PRESET", "from-env")
	t.Setenv("LOVELOG_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("LOVELOG_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(path, filepath.Join(dir, "missing.env")))

	assert.Equal(t, "from-file", os.Getenv("LOVELOG_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("LOVELOG_TEST_PRESET"))
}
