// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// ExpirySource selects where the enforcer reads a visitor's expiry from.
type ExpirySource string

// Expiry sources.
const (
	// ExpiryFromStore re-reads the live credential on every check, so rotating
	// the visitor password also moves the expiry of sessions already issued.
	ExpiryFromStore ExpirySource = "store"
	// ExpiryFromSession uses the expiry captured at login.
	ExpiryFromSession ExpirySource = "session"
)

// ParseExpirySource converts a configuration value into an ExpirySource.
func ParseExpirySource(s string) (ExpirySource, error) {
	switch ExpirySource(s) {
	case ExpiryFromStore, ExpiryFromSession:
		return ExpirySource(s), nil
	default:
		return "", oops.Code("AUTH_INVALID_EXPIRY_SOURCE").
			With("expiry_source", s).
			Errorf("expiry source must be %q or %q", ExpiryFromStore, ExpiryFromSession)
	}
}

// VisitorExpiryEnforcer lazily ends visitor sessions whose credential has expired.
type VisitorExpiryEnforcer struct {
	credentials CredentialStore
	sessions    SessionRepository
	source      ExpirySource
	logger      *slog.Logger
	now         func() time.Time
}

// NewVisitorExpiryEnforcer creates a new VisitorExpiryEnforcer.
func NewVisitorExpiryEnforcer(credentials CredentialStore, sessions SessionRepository, source ExpirySource, opts ...Option) (*VisitorExpiryEnforcer, error) {
	if credentials == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("sessions repository is required")
	}
	if _, err := ParseExpirySource(string(source)); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &VisitorExpiryEnforcer{
		credentials: credentials,
		sessions:    sessions,
		source:      source,
		logger:      o.logger,
		now:         o.now,
	}, nil
}

// Check returns a VISITOR_EXPIRED error and destroys the session when session is a
// visitor session past its expiry. Anonymous and couple sessions always pass.
func (e *VisitorExpiryEnforcer) Check(ctx context.Context, session *Session) error {
	if session == nil || session.Role != RoleVisitor {
		return nil
	}

	expiresAt, err := e.expiryOf(ctx, session)
	if err != nil {
		return err
	}
	if expiresAt == nil || !e.now().After(*expiresAt) {
		return nil
	}

	e.logger.InfoContext(ctx, "visitor session expired",
		"event", "visitor_session_expired",
		"session_id", session.ID.String(),
		"expired_at", expiresAt.UTC(),
	)

	if err := e.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		e.logger.WarnContext(ctx, "best-effort expired session delete failed",
			"operation", "delete_expired_visitor",
			"session_id", session.ID.String(),
			"error", err.Error(),
		)
	}

	return oops.Code(CodeVisitorExpired).
		With("expired_at", *expiresAt).
		Errorf("visitor access has expired, ask for a new invitation password")
}

func (e *VisitorExpiryEnforcer) expiryOf(ctx context.Context, session *Session) (*time.Time, error) {
	if e.source == ExpiryFromSession {
		return session.ExpiresAt, nil
	}

	cred, err := e.credentials.Get(ctx, RoleVisitor)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_EXPIRY_CHECK_FAILED").
			With("operation", "get visitor credential").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return cred.ExpiresAt, nil
}
