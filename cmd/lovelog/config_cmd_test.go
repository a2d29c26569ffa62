// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lovelog/lovelog/internal/config"
	"github.com/lovelog/lovelog/internal/logging"
	"github.com/lovelog/lovelog/pkg/errutil"
)

type shownConfig struct {
	HTTP struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Session struct {
		Store    string `yaml:"store"`
		Lifetime string `yaml:"lifetime"`
	} `yaml:"session"`
	Secrets struct {
		DatabaseURL   string `yaml:"database_url"`
		SessionSecret string `yaml:"session_secret"`
		RedisPassword string `yaml:"redis_password"`
	} `yaml:"secrets"`
}

func showConfig(t *testing.T, env *cliEnv, args ...string) shownConfig {
	t.Helper()
	res := env.run(t, append([]string{"config", "show"}, args...)...)
	require.NoError(t, res.err, res.stderr)

	var shown shownConfig
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &shown))
	return shown
}

func TestConfigShow_Defaults(t *testing.T) {
	env := newCLIEnv(t)

	shown := showConfig(t, env)
	assert.Equal(t, ":3001", shown.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, shown.HTTP.AllowedOrigins)
	assert.Equal(t, config.StorePostgres, shown.Session.Store)
	assert.Equal(t, "24h0m0s", shown.Session.Lifetime)
	assert.Equal(t, logging.Redacted, shown.Secrets.DatabaseURL)
	assert.Equal(t, logging.Redacted, shown.Secrets.SessionSecret)
	assert.Empty(t, shown.Secrets.RedisPassword)
}

func TestConfigShow_NeverPrintsSecrets(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "config", "show")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stdout, testSessionSecret)
	assert.NotContains(t, res.stdout, "lovelog:secret@")
}

func TestConfigShow_FileAndFlags(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "lovelog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: "127.0.0.1:8080"
session:
  store: redis
  lifetime: 2h
`), 0o600))

	shown := showConfig(t, env, "--config", path)
	assert.Equal(t, "127.0.0.1:8080", shown.HTTP.Addr)
	assert.Equal(t, config.StoreRedis, shown.Session.Store)
	assert.Equal(t, "2h0m0s", shown.Session.Lifetime)

	shown = showConfig(t, env, "--config", path, "--http-addr", ":9999")
	assert.Equal(t, ":9999", shown.HTTP.Addr)
	assert.Equal(t, config.StoreRedis, shown.Session.Store)
}

func TestConfigShow_DefaultFileLocation(t *testing.T) {
	env := newCLIEnv(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "lovelog")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("http:\n  addr: \"127.0.0.1:7000\"\n"), 0o600))

	assert.Equal(t, "127.0.0.1:7000", showConfig(t, env).HTTP.Addr)
}

func TestConfigShow_MissingExplicitFile(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	errutil.AssertErrorCode(t, res.err, "CONFIG_LOAD_FAILED")
}

func TestConfigShow_DotEnv(t *testing.T) {
	env := newCLIEnv(t)
	env.deps.Getenv = os.Getenv
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvSessionSecret, "")
	require.NoError(t, os.Unsetenv(config.EnvDatabaseURL))
	require.NoError(t, os.Unsetenv(config.EnvSessionSecret))

	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("DATABASE_URL=postgres://from-dotenv/lovelog\n"), 0o600))

	cmd := newRootCmd(env.deps)
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"--env-file", dotenv, "config", "show"})
	require.NoError(t, cmd.Execute())

	var shown shownConfig
	require.NoError(t, yaml.Unmarshal([]byte(out.String()), &shown))
	assert.Equal(t, logging.Redacted, shown.Secrets.DatabaseURL)
	assert.Empty(t, shown.Secrets.SessionSecret)
	assert.Equal(t, "postgres://from-dotenv/lovelog", os.Getenv(config.EnvDatabaseURL))
}

func TestConfigValidate(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "config", "validate")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Configuration is valid")

	delete(env.env, config.EnvSessionSecret)
	res = env.run(t, "config", "validate", "--log-format", "xml")
	errutil.AssertErrorCode(t, res.err, "CONFIG_INVALID")
	assert.Contains(t, res.stderr, "  - log.format must be json or text")
	assert.Contains(t, res.stderr, "  - SESSION_SECRET must be at least 32 characters")
}

func TestConfigValidate_RejectsUnknownFileKeys(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "lovelog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  store: etcd\nsecrets:\n  session_secret: in-file\n"), 0o600))

	res := env.run(t, "config", "validate", "--config", path)
	errutil.AssertErrorCode(t, res.err, "CONFIG_SCHEMA_INVALID")
	assert.Contains(t, res.stderr, "/session/store")
	assert.Contains(t, res.stderr, "secrets")
	assert.NotContains(t, res.stdout, "Configuration is valid")

	// config show stays lenient and ignores the file's secrets.
	shown := showConfig(t, env, "--config", path)
	assert.Equal(t, logging.Redacted, shown.Secrets.SessionSecret)
}

func TestConfigValidate_MissingDefaultFile(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "config", "validate")
	require.NoError(t, res.err, res.stderr)
}

func TestConfigSchema(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run(t, "config", "schema")
	require.NoError(t, res.err, res.stderr)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.Equal(t, config.SchemaID, doc["$id"])
	assert.Equal(t, 0, env.opened)
}
