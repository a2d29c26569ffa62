// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/observability"
	"github.com/lovelog/lovelog/pkg/errutil"
)

type loginRequest struct {
	Password string `json:"password"`
}

type userView struct {
	Type string `json:"type"`
}

type loginResponse struct {
	Success    bool       `json:"success"`
	User       userView   `json:"user"`
	Message    string     `json:"message"`
	ExpiryTime *time.Time `json:"expiryTime"`
}

type statusResponse struct {
	Success       bool       `json:"success"`
	Authenticated bool       `json:"authenticated"`
	User          *userView  `json:"user,omitempty"`
	LoginTime     *time.Time `json:"loginTime,omitempty"`
	ExpiryTime    *time.Time `json:"expiryTime,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.RecordLogin(observability.LoginInvalid)
		s.abortWithError(c, badRequest("request body must be JSON with a password field"))
		return
	}

	ctx := c.Request.Context()
	session, token, err := s.authority.Login(ctx, req.Password, clientInfo(c))
	if err != nil {
		s.metrics.RecordLogin(loginResult(err))
		s.abortWithError(c, err)
		return
	}

	// A cookie already bound to a session is rebound; the old session ends here.
	if previous := sessionFrom(c); previous != nil {
		if err := s.authority.Logout(ctx, previous); err != nil {
			s.logger.WarnContext(ctx, "best-effort previous session logout failed",
				"operation", "logout_previous",
				"session_id", previous.ID.String(),
				"error", err.Error(),
			)
		}
	}

	if err := s.bindToken(c, token); err != nil {
		s.metrics.RecordLogin(observability.LoginError)
		if logoutErr := s.authority.Logout(ctx, session); logoutErr != nil {
			s.logger.WarnContext(ctx, "best-effort orphan session logout failed",
				"operation", "logout_orphan",
				"session_id", session.ID.String(),
				"error", logoutErr.Error(),
			)
		}
		s.abortWithError(c, oops.Code("WEB_COOKIE_SAVE_FAILED").Wrap(err))
		return
	}

	s.metrics.RecordLogin(session.Role.String())
	c.JSON(http.StatusOK, loginResponse{
		Success:    true,
		User:       userView{Type: session.Role.String()},
		Message:    session.Role.String() + " login succeeded",
		ExpiryTime: utcPtr(session.ExpiresAt),
	})
}

func loginResult(err error) string {
	switch errutil.Code(err) {
	case auth.CodeInvalidCredentials, auth.CodeValidation:
		return observability.LoginInvalid
	case auth.CodeVisitorExpired:
		return observability.LoginExpired
	default:
		return observability.LoginError
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	status := auth.StatusOf(sessionFrom(c))
	if !status.Authenticated {
		c.JSON(http.StatusOK, statusResponse{})
		return
	}

	loginTime := status.LoginTime.UTC()
	c.JSON(http.StatusOK, statusResponse{
		Success:       true,
		Authenticated: true,
		User:          &userView{Type: status.Role.String()},
		LoginTime:     &loginTime,
		ExpiryTime:    utcPtr(status.ExpiresAt),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.authority.Logout(c.Request.Context(), sessionFrom(c)); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.clearCookie(c)
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "logged out"})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	now := s.now()
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(s.started).Seconds(),
	})
}

func badRequest(msg string) error {
	return oops.Code(auth.CodeValidation).With(auth.DetailsKey, []string{msg}).Errorf("%s", msg)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
