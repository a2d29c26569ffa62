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

const upsertSettingSQL = `
	INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

// CredentialRepository implements auth.CredentialStore on the settings and
// password_history tables.
type CredentialRepository struct {
	pool Pool
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// expiryKey returns the settings key of the role's expiry, or "" when the role
// cannot expire.
func expiryKey(role auth.Role) string {
	if role.CanExpire() {
		return auth.KeyVisitorPasswordExpires
	}
	return ""
}

// Get returns the live credential for role.
func (r *CredentialRepository) Get(ctx context.Context, role auth.Role) (*auth.Credential, error) {
	if !role.Valid() {
		return nil, oops.Code("CREDENTIAL_INVALID_ROLE").With("role", role.String()).Errorf("unknown role")
	}

	var (
		hash      string
		updatedAt time.Time
		expiry    *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT h.value, h.updated_at, e.value
		FROM settings h
		LEFT JOIN settings e ON e.key = $2
		WHERE h.key = $1
	`, role.HashKey(), expiryKey(role)).Scan(&hash, &updatedAt, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("role", role.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "select credential").
			With("role", role.String()).
			Wrap(err)
	}
	if hash == "" {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("role", role.String()).Wrap(auth.ErrNotFound)
	}

	cred := &auth.Credential{Role: role, SecretHash: hash, UpdatedAt: updatedAt}
	if expiry != nil && *expiry != "" {
		t, err := time.Parse(time.RFC3339Nano, *expiry)
		if err != nil {
			return nil, oops.Code("CREDENTIAL_INVALID_EXPIRY").
				With("operation", "parse expiry").
				With("value", *expiry).
				Wrap(err)
		}
		cred.ExpiresAt = &t
	}
	return cred, nil
}

// Set replaces the live credential. The hash and expiry of an expiring role are
// written in one transaction; a nil expiry removes any stale expiry row.
func (r *CredentialRepository) Set(ctx context.Context, cred *auth.Credential) error {
	if cred == nil {
		return oops.Code("CREDENTIAL_SET_FAILED").Errorf("credential is required")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("role", cred.Role.String()).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, upsertSettingSQL, cred.Role.HashKey(), cred.SecretHash, cred.UpdatedAt); err != nil {
		return oops.Code("CREDENTIAL_SET_FAILED").
			With("operation", "upsert hash").
			With("role", cred.Role.String()).
			Wrap(err)
	}

	if key := expiryKey(cred.Role); key != "" {
		if cred.ExpiresAt != nil {
			_, err = tx.Exec(ctx, upsertSettingSQL, key, cred.ExpiresAt.UTC().Format(time.RFC3339Nano), cred.UpdatedAt)
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
		}
		if err != nil {
			return oops.Code("CREDENTIAL_SET_FAILED").
				With("operation", "write expiry").
				With("role", cred.Role.String()).
				Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("role", cred.Role.String()).Wrap(err)
	}
	return nil
}

// Revoke deletes the role's hash and expiry in a single statement.
func (r *CredentialRepository) Revoke(ctx context.Context, role auth.Role) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE key IN ($1, $2)`, role.HashKey(), expiryKey(role))
	if err != nil {
		return oops.Code("CREDENTIAL_REVOKE_FAILED").
			With("operation", "delete credential").
			With("role", role.String()).
			Wrap(err)
	}
	return nil
}

// AppendHistory records a rotation.
func (r *CredentialRepository) AppendHistory(ctx context.Context, entry *auth.HistoryEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_history (id, password_type, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ID.String(), entry.Role.String(), entry.SecretHash, entry.CreatedAt)
	if err != nil {
		return oops.Code("HISTORY_APPEND_FAILED").
			With("operation", "insert password_history").
			With("role", entry.Role.String()).
			Wrap(err)
	}
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (r *CredentialRepository) ListHistory(ctx context.Context, limit int) ([]*auth.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, password_type, password_hash, created_at
		FROM password_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").
			With("operation", "select password_history").
			With("limit", limit).
			Wrap(err)
	}
	defer rows.Close()

	var entries []*auth.HistoryEntry
	for rows.Next() {
		var idStr, roleStr, hash string
		var createdAt time.Time
		if err := rows.Scan(&idStr, &roleStr, &hash, &createdAt); err != nil {
			return nil, oops.Code("HISTORY_SCAN_FAILED").With("operation", "scan password_history row").Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("HISTORY_INVALID_ID").With("id", idStr).Wrap(err)
		}
		role, err := auth.ParseRole(roleStr)
		if err != nil {
			return nil, oops.Code("HISTORY_INVALID_ROLE").With("id", idStr).Wrap(err)
		}
		entries = append(entries, &auth.HistoryEntry{ID: id, Role: role, SecretHash: hash, CreatedAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("HISTORY_ROWS_ERROR").With("operation", "iterate password_history rows").Wrap(err)
	}
	return entries, nil
}

// GetEncryptionKey returns the current encryption key.
func (r *CredentialRepository) GetEncryptionKey(ctx context.Context) (*auth.EncryptionKey, error) {
	var key auth.EncryptionKey
	err := r.pool.QueryRow(ctx, `SELECT value, updated_at FROM settings WHERE key = $1`, auth.KeyEncryptionKey).
		Scan(&key.Value, &key.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ENCRYPTION_KEY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ENCRYPTION_KEY_GET_FAILED").With("operation", "select encryption key").Wrap(err)
	}
	return &key, nil
}

// SetEncryptionKey replaces the encryption key.
func (r *CredentialRepository) SetEncryptionKey(ctx context.Context, key *auth.EncryptionKey) error {
	if _, err := r.pool.Exec(ctx, upsertSettingSQL, auth.KeyEncryptionKey, key.Value, key.UpdatedAt); err != nil {
		return oops.Code("ENCRYPTION_KEY_SET_FAILED").With("operation", "upsert encryption key").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*CredentialRepository)(nil)
