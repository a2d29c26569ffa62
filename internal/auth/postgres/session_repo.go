// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
)

const sessionColumns = `id, token_hash, role, login_time, expires_at, valid_until, user_agent, ip_address, created_at, last_seen_at`

// SessionRepository implements auth.SessionRepository on the web_sessions table.
type SessionRepository struct {
	pool Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session. A token hash that already exists is reported
// as SESSION_TOKEN_COLLISION.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO web_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		session.ID.String(),
		session.TokenHash,
		session.Role.String(),
		session.LoginTime,
		session.ExpiresAt,
		session.ValidUntil,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.LastSeenAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("SESSION_TOKEN_COLLISION").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert web_session").
			With("role", session.Role.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM web_sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE web_sessions SET last_seen_at = $2
		WHERE id = $1
	`, id.String(), lastSeen)
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("operation", "update last_seen_at").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete web_session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByRole removes every session of role. Deleting nothing is not an error.
func (r *SessionRepository) DeleteByRole(ctx context.Context, role auth.Role) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE role = $1`, role.String())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_ROLE_FAILED").
			With("operation", "delete web_sessions by role").
			With("role", role.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions whose valid_until is before now and returns the count.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE valid_until < $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired web_sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
// Scan errors, pgx.ErrNoRows included, are returned unchanged for callers to handle.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr     string
		roleStr   string
		expiresAt *time.Time
		s         auth.Session
	)

	err := row.Scan(&idStr, &s.TokenHash, &roleStr, &s.LoginTime, &expiresAt, &s.ValidUntil,
		&s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	s.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	s.Role, err = auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ROLE").
			With("operation", "parse session role").
			With("id", idStr).
			Wrap(err)
	}
	s.ExpiresAt = expiresAt
	return &s, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
