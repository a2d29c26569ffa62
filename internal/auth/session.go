// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes      = 32             // 32 bytes = 64 hex chars
	DefaultSessionLifetime = 24 * time.Hour // transport-level timeout
)

// Session is server-held proof of a successful login.
type Session struct {
	ID         ulid.ULID
	TokenHash  string
	Role       Role
	LoginTime  time.Time
	ExpiresAt  *time.Time // visitor credential expiry captured at login
	ValidUntil time.Time  // transport-level timeout
	UserAgent  string
	IPAddress  string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// ClientInfo is request metadata recorded with a session and in audit logs.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// NewSession creates a validated Session.
// UserAgent and IPAddress are optional and may be empty.
func NewSession(role Role, tokenHash string, client ClientInfo, loginTime, validUntil time.Time, expiresAt *time.Time) (*Session, error) {
	if !role.Valid() {
		return nil, oops.Code("SESSION_INVALID_ROLE").With("role", string(role)).Errorf("unknown role")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !validUntil.After(loginTime) {
		return nil, oops.Code("SESSION_INVALID_LIFETIME").Errorf("session must be valid after login time")
	}
	if expiresAt != nil && !role.CanExpire() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("role", string(role)).
			Errorf("%s sessions cannot carry a credential expiry", role)
	}

	return &Session{
		ID:         ulid.Make(),
		TokenHash:  tokenHash,
		Role:       role,
		LoginTime:  loginTime,
		ExpiresAt:  expiresAt,
		ValidUntil: validUntil,
		UserAgent:  client.UserAgent,
		IPAddress:  client.IPAddress,
		CreatedAt:  loginTime,
		LastSeenAt: loginTime,
	}, nil
}

// TimedOutAt reports whether the transport-level lifetime has elapsed at t.
func (s *Session) TimedOutAt(t time.Time) bool {
	return !t.Before(s.ValidUntil)
}

// Status is the read-only projection of a session returned to clients.
type Status struct {
	Authenticated bool
	Role          Role
	LoginTime     time.Time
	ExpiresAt     *time.Time
}

// StatusOf projects a session. A nil session is anonymous.
func StatusOf(s *Session) Status {
	if s == nil {
		return Status{}
	}
	return Status{
		Authenticated: true,
		Role:          s.Role,
		LoginTime:     s.LoginTime,
		ExpiresAt:     s.ExpiresAt,
	}
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// UpdateLastSeen updates the LastSeenAt timestamp for a session.
	UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByRole removes every session of a role and returns how many were removed.
	DeleteByRole(ctx context.Context, role Role) (int64, error)

	// DeleteExpired removes sessions whose ValidUntil is before now and returns
	// the count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
