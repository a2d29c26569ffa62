// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package web serves the lovelog JSON API over gin.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/observability"
	"github.com/lovelog/lovelog/internal/settings"
)

// Config controls the HTTP surface.
type Config struct {
	Addr           string
	CookieName     string
	CookieSecure   bool
	SessionSecret  []byte
	AllowedOrigins []string
	// TrustedProxies are consulted for the client IP. Nil trusts none.
	TrustedProxies []string
}

// Deps are the services the handlers call.
type Deps struct {
	Authority *auth.Authority
	Enforcer  *auth.VisitorExpiryEnforcer
	Gate      *auth.Gate
	Passwords *auth.PasswordManager
	Settings  *settings.Service
	// Metrics may be nil; a private registry is used then.
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Server is the API server.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool

	authority *auth.Authority
	enforcer  *auth.VisitorExpiryEnforcer
	gate      *auth.Gate
	passwords *auth.PasswordManager
	settings  *settings.Service
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
	started   time.Time
}

// NewServer builds the router and wires every route.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if err := validate(cfg, deps); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		authority: deps.Authority,
		enforcer:  deps.Enforcer,
		gate:      deps.Gate,
		passwords: deps.Passwords,
		settings:  deps.Settings,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()

	engine, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func validate(cfg Config, deps Deps) error {
	var problems []string
	if cfg.CookieName == "" {
		problems = append(problems, "cookie name is required")
	}
	if len(cfg.SessionSecret) == 0 {
		problems = append(problems, "session secret is required")
	}
	if deps.Authority == nil {
		problems = append(problems, "authority is required")
	}
	if deps.Enforcer == nil {
		problems = append(problems, "expiry enforcer is required")
	}
	if deps.Gate == nil {
		problems = append(problems, "gate is required")
	}
	if deps.Passwords == nil {
		problems = append(problems, "password manager is required")
	}
	if deps.Settings == nil {
		problems = append(problems, "settings service is required")
	}
	if len(problems) > 0 {
		return oops.Code("WEB_INVALID_CONFIG").
			With(auth.DetailsKey, problems).
			Errorf("invalid web server setup: %s", problems[0])
	}
	return nil
}

func (s *Server) routes() (*gin.Engine, error) {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").With("operation", "set trusted proxies").Wrap(err)
	}

	engine.Use(s.requestLog(), gin.CustomRecovery(s.recoverPanic))

	if len(s.cfg.AllowedOrigins) > 0 {
		corsCfg := corsConfig(s.cfg.AllowedOrigins)
		if err := corsCfg.Validate(); err != nil {
			return nil, oops.Code("WEB_INVALID_CONFIG").With("operation", "configure cors").Wrap(err)
		}
		engine.Use(cors.New(corsCfg))
	}

	store := cookie.NewStore(s.cfg.SessionSecret)
	store.Options(s.cookieOptions(int(s.authority.Lifetime().Seconds())))
	engine.Use(sessions.Sessions(s.cfg.CookieName, store))

	engine.GET("/health", s.handleHealth)
	engine.NoRoute(s.handleNoRoute)
	engine.NoMethod(s.handleNoMethod)

	api := engine.Group("/api", s.resolveSession())

	authRoutes := api.Group("/auth")
	authRoutes.POST("/login", s.handleLogin)
	authRoutes.GET("/status", s.checkExpiry(), s.handleStatus)
	authRoutes.POST("/logout", s.handleLogout)

	password := api.Group("/password", s.require(auth.CoupleOnly))
	password.GET("/status", s.handlePasswordStatus)
	password.PUT("/couple", s.handleChangeCouple)
	password.PUT("/visitor", s.handleSetVisitor)
	password.POST("/visitor/generate", s.handleGenerateVisitor)
	password.DELETE("/visitor", s.handleRevokeVisitor)
	password.GET("/history", s.handleHistory)
	password.POST("/encryption-key", s.handleRegenerateKey)

	api.GET("/settings", s.require(auth.AnyAuthenticated), s.checkExpiry(), s.handleGetSettings)
	api.PUT("/settings", s.require(auth.CoupleOnly), s.handleUpdateSettings)

	return engine, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = append([]string(nil), origins...)
	}
	return cfg
}

func (s *Server) cookieOptions(maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve error after startup and is closed when
// the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("server already started")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
			errCh <- oops.Code("WEB_SERVE_FAILED").Wrap(err)
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}
