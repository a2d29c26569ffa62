// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/auth/postgres"
)

var sessionCols = []string{
	"id", "token_hash", "role", "login_time", "expires_at", "valid_until",
	"user_agent", "ip_address", "created_at", "last_seen_at",
}

func testSession(t *testing.T, role auth.Role, expiresAt *time.Time) *auth.Session {
	t.Helper()
	login := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	s, err := auth.NewSession(role, auth.HashSessionToken("token-"+role.String()),
		auth.ClientInfo{IPAddress: "203.0.113.7", UserAgent: "Mozilla/5.0"},
		login, login.Add(auth.DefaultSessionLifetime), expiresAt)
	require.NoError(t, err)
	return s
}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts every column", func(t *testing.T) {
		mock := newMockPool(t)
		s := testSession(t, auth.RoleCouple, nil)
		mock.ExpectExec(`INSERT INTO web_sessions`).
			WithArgs(s.ID.String(), s.TokenHash, "couple", s.LoginTime, pgxmock.AnyArg(), s.ValidUntil,
				s.UserAgent, s.IPAddress, s.CreatedAt, s.LastSeenAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, postgres.NewSessionRepository(mock).Create(ctx, s))
	})

	t.Run("duplicate token hash is a collision", func(t *testing.T) {
		mock := newMockPool(t)
		s := testSession(t, auth.RoleCouple, nil)
		mock.ExpectExec(`INSERT INTO web_sessions`).
			WithArgs(s.ID.String(), s.TokenHash, "couple", s.LoginTime, pgxmock.AnyArg(), s.ValidUntil,
				s.UserAgent, s.IPAddress, s.CreatedAt, s.LastSeenAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := postgres.NewSessionRepository(mock).Create(ctx, s)
		require.Error(t, err)
		assert.Equal(t, "SESSION_TOKEN_COLLISION", errorCode(err))
	})

	t.Run("other failures", func(t *testing.T) {
		mock := newMockPool(t)
		s := testSession(t, auth.RoleCouple, nil)
		mock.ExpectExec(`INSERT INTO web_sessions`).
			WithArgs(s.ID.String(), s.TokenHash, "couple", s.LoginTime, pgxmock.AnyArg(), s.ValidUntil,
				s.UserAgent, s.IPAddress, s.CreatedAt, s.LastSeenAt).
			WillReturnError(errors.New("connection reset"))

		err := postgres.NewSessionRepository(mock).Create(ctx, s)
		require.Error(t, err)
		assert.Equal(t, "SESSION_CREATE_FAILED", errorCode(err))
	})
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()
	login := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	expiry := login.Add(24 * time.Hour)
	id := ulid.Make()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		check     func(t *testing.T, s *auth.Session, err error)
	}{
		{
			name: "visitor session",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM web_sessions\s+WHERE token_hash = \$1`).
					WithArgs("abc").
					WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
						id.String(), "abc", "visitor", login, &expiry, login.Add(auth.DefaultSessionLifetime),
						"ua", "198.51.100.1", login, login))
			},
			check: func(t *testing.T, s *auth.Session, err error) {
				require.NoError(t, err)
				assert.Equal(t, id, s.ID)
				assert.Equal(t, auth.RoleVisitor, s.Role)
				require.NotNil(t, s.ExpiresAt)
				assert.Equal(t, expiry, *s.ExpiresAt)
				assert.Equal(t, "198.51.100.1", s.IPAddress)
			},
		},
		{
			name: "unknown token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM web_sessions`).
					WithArgs("abc").
					WillReturnRows(pgxmock.NewRows(sessionCols))
			},
			check: func(t *testing.T, _ *auth.Session, err error) {
				require.ErrorIs(t, err, auth.ErrNotFound)
				assert.Equal(t, "SESSION_NOT_FOUND", errorCode(err))
			},
		},
		{
			name: "corrupt role",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM web_sessions`).
					WithArgs("abc").
					WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
						id.String(), "abc", "admin", login, nil, login.Add(time.Hour), "", "", login, login))
			},
			check: func(t *testing.T, _ *auth.Session, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, auth.ErrNotFound)
				assert.Equal(t, "AUTH_INVALID_ROLE", errorCode(err))
			},
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM web_sessions`).
					WithArgs("abc").
					WillReturnError(errors.New("timeout"))
			},
			check: func(t *testing.T, _ *auth.Session, err error) {
				require.Error(t, err)
				assert.Equal(t, "SESSION_GET_BY_TOKEN_FAILED", errorCode(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)
			s, err := postgres.NewSessionRepository(mock).GetByTokenHash(ctx, "abc")
			tt.check(t, s, err)
		})
	}
}

func TestSessionRepository_UpdateLastSeenAndDelete(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	seen := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	t.Run("update last seen", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).
			WithArgs(id.String(), seen).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, postgres.NewSessionRepository(mock).UpdateLastSeen(ctx, id, seen))
	})

	t.Run("update missing session", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).
			WithArgs(id.String(), seen).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := postgres.NewSessionRepository(mock).UpdateLastSeen(ctx, id, seen)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, postgres.NewSessionRepository(mock).Delete(ctx, id))
	})

	t.Run("delete missing session", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		err := postgres.NewSessionRepository(mock).Delete(ctx, id)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_BulkDeletes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	t.Run("by role returns count", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE role = \$1`).
			WithArgs("visitor").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		n, err := postgres.NewSessionRepository(mock).DeleteByRole(ctx, auth.RoleVisitor)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("by role with nothing to delete", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE role = \$1`).
			WithArgs("visitor").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		n, err := postgres.NewSessionRepository(mock).DeleteByRole(ctx, auth.RoleVisitor)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("expired", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE valid_until < \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		n, err := postgres.NewSessionRepository(mock).DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("expired failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE valid_until`).
			WithArgs(now).
			WillReturnError(errors.New("boom"))
		_, err := postgres.NewSessionRepository(mock).DeleteExpired(ctx, now)
		require.Error(t, err)
		assert.Equal(t, "SESSION_DELETE_EXPIRED_FAILED", errorCode(err))
	})
}
