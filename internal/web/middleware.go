// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/pkg/errutil"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxRequestID = "lovelog.request_id"
	ctxSession   = "lovelog.session"

	// tokenKey is where the opaque session token lives inside the signed cookie.
	tokenKey = "token"
)

// requestLog tags the request with an id, then logs and measures it once it completes.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()

		requestID := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		elapsed := s.now().Sub(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)

		s.logger.Log(c.Request.Context(), levelFor(status), "request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// resolveSession maps the cookie token to a session. A token that no longer
// resolves is dropped from the cookie and the request continues anonymously.
func (s *Server) resolveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookieSession := sessions.Default(c)
		token, _ := cookieSession.Get(tokenKey).(string)

		session, err := s.authority.Resolve(c.Request.Context(), token)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		if session == nil && token != "" {
			s.clearCookie(c)
		}

		c.Set(ctxSession, session)
		c.Next()
	}
}

// checkExpiry ends visitor sessions whose credential has expired.
func (s *Server) checkExpiry() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.enforcer.Check(c.Request.Context(), sessionFrom(c))
		if err == nil {
			c.Next()
			return
		}
		if errutil.Code(err) == auth.CodeVisitorExpired {
			s.metrics.RecordVisitorExpired()
			s.clearCookie(c)
			c.Set(ctxSession, (*auth.Session)(nil))
		}
		s.abortWithError(c, err)
	}
}

// require enforces an access requirement through the gate.
func (s *Server) require(req auth.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.gate.Check(c.Request.Context(), sessionFrom(c), req, auth.RequestInfo{
			IPAddress: c.ClientIP(),
			Path:      c.Request.URL.Path,
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			s.metrics.RecordDenied(errutil.Code(err))
			s.abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// sessionFrom returns the resolved session, or nil for anonymous callers.
func sessionFrom(c *gin.Context) *auth.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	session, _ := v.(*auth.Session)
	return session
}

func clientInfo(c *gin.Context) auth.ClientInfo {
	return auth.ClientInfo{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// bindToken stores token in the signed cookie.
func (s *Server) bindToken(c *gin.Context, token string) error {
	cookieSession := sessions.Default(c)
	cookieSession.Clear()
	cookieSession.Set(tokenKey, token)
	cookieSession.Options(s.cookieOptions(int(s.authority.Lifetime() / time.Second)))
	return cookieSession.Save()
}

// clearCookie expires the session cookie on the client.
func (s *Server) clearCookie(c *gin.Context) {
	cookieSession := sessions.Default(c)
	cookieSession.Clear()
	cookieSession.Options(s.cookieOptions(-1))
	if err := cookieSession.Save(); err != nil {
		s.logger.WarnContext(c.Request.Context(), "best-effort cookie clear failed",
			"operation", "clear_cookie",
			"error", err.Error(),
		)
	}
}
