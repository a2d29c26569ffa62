// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package config loads lovelog's configuration from a YAML file, command-line
// flags and the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/logging"
)

// Environment variables holding secrets. Secrets are never read from files or flags.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvSessionSecret = "SESSION_SECRET"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// MinSessionSecretLength is the shortest accepted cookie signing secret.
const MinSessionSecretLength = 32

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config is the effective configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Session SessionConfig `koanf:"session" yaml:"session"`
	Redis   RedisConfig   `koanf:"redis" yaml:"redis"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Secrets Secrets       `koanf:"-" yaml:"secrets"`
}

// HTTPConfig configures the API listener and cookie binding.
type HTTPConfig struct {
	Addr           string   `koanf:"addr" yaml:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins" yaml:"allowed_origins"`
	CookieName     string   `koanf:"cookie_name" yaml:"cookie_name"`
	CookieSecure   bool     `koanf:"cookie_secure" yaml:"cookie_secure"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// SessionConfig configures session storage and lifetime.
type SessionConfig struct {
	Store        string        `koanf:"store" yaml:"store" jsonschema:"enum=postgres,enum=redis,enum=memory"`
	Lifetime     time.Duration `koanf:"lifetime" yaml:"lifetime"`
	ExpirySource string        `koanf:"expiry_source" yaml:"expiry_source" jsonschema:"enum=store,enum=session"`
}

// MarshalYAML writes Lifetime as a duration string so printed config loads back.
func (s SessionConfig) MarshalYAML() (any, error) {
	return map[string]string{
		"store":         s.Store,
		"lifetime":      s.Lifetime.String(),
		"expiry_source": s.ExpirySource,
	}, nil
}

// RedisConfig configures the redis session store.
type RedisConfig struct {
	Addr   string `koanf:"addr" yaml:"addr"`
	DB     int    `koanf:"db" yaml:"db" jsonschema:"minimum=0"`
	Prefix string `koanf:"prefix" yaml:"prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Secrets come from the environment only.
type Secrets struct {
	DatabaseURL   string `yaml:"database_url"`
	SessionSecret string `yaml:"session_secret"`
	RedisPassword string `yaml:"redis_password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           ":3001",
			AllowedOrigins: []string{"http://localhost:5173"},
			CookieName:     "lovelog_session",
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Session: SessionConfig{
			Store:        StorePostgres,
			Lifetime:     auth.DefaultSessionLifetime,
			ExpirySource: string(auth.ExpiryFromStore),
		},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "lovelog:"},
		Log:   LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":             "http.addr",
	"allowed-origins":       "http.allowed_origins",
	"cookie-name":           "http.cookie_name",
	"cookie-secure":         "http.cookie_secure",
	"metrics-addr":          "metrics.addr",
	"session-store":         "session.store",
	"session-lifetime":      "session.lifetime",
	"session-expiry-source": "session.expiry_source",
	"redis-addr":            "redis.addr",
	"redis-db":              "redis.db",
	"redis-prefix":          "redis.prefix",
	"log-format":            "log.format",
	"log-level":             "log.level",
}

// RegisterFlags adds the configuration flags to fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.StringSlice("allowed-origins", d.HTTP.AllowedOrigins, "CORS origins allowed to send credentials")
	fs.String("cookie-name", d.HTTP.CookieName, "session cookie name")
	fs.Bool("cookie-secure", d.HTTP.CookieSecure, "mark the session cookie Secure")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("session-store", d.Session.Store, "session store: postgres, redis or memory")
	fs.Duration("session-lifetime", d.Session.Lifetime, "transport-level session lifetime")
	fs.String("session-expiry-source", d.Session.ExpirySource, "visitor expiry source: store or session")
	fs.String("redis-addr", d.Redis.Addr, "redis address")
	fs.Int("redis-db", d.Redis.DB, "redis database number")
	fs.String("redis-prefix", d.Redis.Prefix, "redis key prefix")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is the YAML file. A missing file is an error only when Explicit is set.
	Path     string
	Explicit bool
	// Flags registered with RegisterFlags. Changed flags override the file;
	// flag defaults fill keys the file leaves unset.
	Flags *pflag.FlagSet
	// Getenv reads secrets. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds the effective configuration. It does not validate it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.Path != "" {
		err := k.Load(file.Provider(opts.Path), yaml.Parser())
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && !opts.Explicit:
		default:
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", opts.Path).
				Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode config").Wrap(err)
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.Secrets = Secrets{
		DatabaseURL:   getenv(EnvDatabaseURL),
		SessionSecret: getenv(EnvSessionSecret),
		RedisPassword: getenv(EnvRedisPassword),
	}
	return &cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return oops.Code("CONFIG_DOTENV_FAILED").With("path", p).Wrap(err)
		}
	}
	return nil
}

// Validate checks the configuration used by the API server.
// All problems are reported together in the "details" context.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}
	if c.HTTP.CookieName == "" {
		problems = append(problems, "http.cookie_name is required")
	}
	for _, o := range c.HTTP.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			problems = append(problems, "http.allowed_origins entries must be http(s) URLs: "+o)
		}
	}
	switch c.Session.Store {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		problems = append(problems, "session.store must be postgres, redis or memory")
	}
	if c.Session.Lifetime < time.Minute {
		problems = append(problems, "session.lifetime must be at least 1m")
	}
	if _, err := auth.ParseExpirySource(c.Session.ExpirySource); err != nil {
		problems = append(problems, "session.expiry_source must be store or session")
	}
	if c.Session.Store == StoreRedis && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when session.store is redis")
	}
	if c.Redis.DB < 0 {
		problems = append(problems, "redis.db cannot be negative")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, "log.format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level must be debug, info, warn or error")
	}
	if c.Secrets.DatabaseURL == "" {
		problems = append(problems, EnvDatabaseURL+" is required")
	}
	if len(c.Secrets.SessionSecret) < MinSessionSecretLength {
		problems = append(problems, EnvSessionSecret+" must be at least 32 characters")
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With(auth.DetailsKey, problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns a copy safe to print, with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	out.HTTP.AllowedOrigins = append([]string(nil), c.HTTP.AllowedOrigins...)
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return logging.Redacted
	}
	out.Secrets = Secrets{
		DatabaseURL:   mask(c.Secrets.DatabaseURL),
		SessionSecret: mask(c.Secrets.SessionSecret),
		RedisPassword: mask(c.Secrets.RedisPassword),
	}
	return out
}
