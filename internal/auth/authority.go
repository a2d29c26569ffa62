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

// Authority issues, resolves and destroys sessions.
type Authority struct {
	credentials CredentialStore
	sessions    SessionRepository
	hasher      PasswordHasher
	logger      *slog.Logger
	now         func() time.Time
	lifetime    time.Duration
}

// NewAuthority creates a new Authority.
func NewAuthority(credentials CredentialStore, sessions SessionRepository, hasher PasswordHasher, opts ...Option) (*Authority, error) {
	if credentials == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}

	o := buildOptions(opts)
	return &Authority{
		credentials: credentials,
		sessions:    sessions,
		hasher:      hasher,
		logger:      o.logger,
		now:         o.now,
		lifetime:    o.lifetime,
	}, nil
}

// Lifetime returns the transport-level session timeout.
func (a *Authority) Lifetime() time.Duration {
	return a.lifetime
}

// Login checks secret against the couple credential, then the visitor credential,
// and creates a session for the first match.
// Returns the session, the plaintext token for the client, and any error.
func (a *Authority) Login(ctx context.Context, secret string, client ClientInfo) (*Session, string, error) {
	if secret == "" {
		return nil, "", oops.Code(CodeValidation).
			With(DetailsKey, []string{"password cannot be empty"}).
			Errorf("password cannot be empty")
	}

	cred, err := a.match(ctx, secret)
	if err != nil {
		return nil, "", err
	}
	if cred == nil {
		a.logger.WarnContext(ctx, "login failed",
			"event", "login_failed",
			"ip", client.IPAddress,
			"user_agent", client.UserAgent,
		)
		return nil, "", oops.Code(CodeInvalidCredentials).Errorf("invalid password")
	}

	now := a.now()
	if cred.IsExpiredAt(now) {
		a.logger.InfoContext(ctx, "visitor login refused, credential expired",
			"event", "visitor_expired",
			"expired_at", cred.ExpiresAt.UTC(),
			"ip", client.IPAddress,
		)
		return nil, "", oops.Code(CodeVisitorExpired).
			With("expired_at", *cred.ExpiresAt).
			Errorf("visitor access has expired")
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(cred.Role, tokenHash, client, now, now.Add(a.lifetime), copyTime(cred.ExpiresAt))
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := a.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	a.logger.InfoContext(ctx, "login succeeded",
		"event", "login_succeeded",
		"role", session.Role.String(),
		"session_id", session.ID.String(),
		"ip", client.IPAddress,
		"user_agent", client.UserAgent,
	)
	return session, token, nil
}

// match returns the first credential in login order that secret verifies against,
// or nil when none does.
func (a *Authority) match(ctx context.Context, secret string) (*Credential, error) {
	for _, role := range loginOrder {
		cred, err := a.credentials.Get(ctx, role)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get credential").
				With("role", role.String()).
				Wrap(err)
		}
		if a.hasher.Verify(secret, cred.SecretHash) {
			return cred, nil
		}
	}
	return nil, nil
}

// Logout destroys a session. A nil or already destroyed session is not an error.
func (a *Authority) Logout(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}

	err := a.sessions.Delete(ctx, session.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	a.logger.InfoContext(ctx, "logout",
		"event", "logout",
		"role", session.Role.String(),
		"session_id", session.ID.String(),
	)
	return nil
}

// Resolve maps a client token to its session.
// An empty, unknown or timed-out token resolves to (nil, nil): the caller is anonymous.
func (a *Authority) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}

	session, err := a.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := a.now()
	if session.TimedOutAt(now) {
		if err := a.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
			a.logger.WarnContext(ctx, "best-effort timed-out session delete failed",
				"operation", "delete_timed_out",
				"session_id", session.ID.String(),
				"error", err.Error(),
			)
		}
		return nil, nil
	}

	if err := a.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		a.logger.WarnContext(ctx, "best-effort last seen update failed",
			"operation", "update_last_seen",
			"session_id", session.ID.String(),
			"error", err.Error(),
		)
	}
	return session, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
