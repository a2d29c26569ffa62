// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// fingerprintLength is how many leading characters of the encryption key are shown.
const fingerprintLength = 8

// Credential is the live secret for a role.
type Credential struct {
	Role       Role
	SecretHash string
	UpdatedAt  time.Time
	ExpiresAt  *time.Time // always nil for RoleCouple
}

// NewCredential creates a validated Credential.
// Couple credentials never expire; passing an expiry for them is an error.
func NewCredential(role Role, secretHash string, expiresAt *time.Time, now time.Time) (*Credential, error) {
	if !role.Valid() {
		return nil, oops.Code("CREDENTIAL_INVALID_ROLE").With("role", string(role)).Errorf("unknown role")
	}
	if secretHash == "" {
		return nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("secret hash cannot be empty")
	}
	if expiresAt != nil && !role.CanExpire() {
		return nil, oops.Code("CREDENTIAL_INVALID_EXPIRY").
			With("role", string(role)).
			Errorf("%s credentials cannot expire", role)
	}
	return &Credential{
		Role:       role,
		SecretHash: secretHash,
		UpdatedAt:  now,
		ExpiresAt:  expiresAt,
	}, nil
}

// IsExpiredAt reports whether the credential has an expiry that t is past.
func (c *Credential) IsExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && t.After(*c.ExpiresAt)
}

// HistoryEntry is one immutable row of the password rotation audit trail.
type HistoryEntry struct {
	ID         ulid.ULID
	Role       Role
	SecretHash string
	CreatedAt  time.Time
}

// NewHistoryEntry creates a HistoryEntry for a freshly stored credential.
func NewHistoryEntry(cred *Credential) *HistoryEntry {
	return &HistoryEntry{
		ID:         ulid.Make(),
		Role:       cred.Role,
		SecretHash: cred.SecretHash,
		CreatedAt:  cred.UpdatedAt,
	}
}

// EncryptionKey is the auxiliary key handed to clients for payload obfuscation.
type EncryptionKey struct {
	Value     string
	UpdatedAt time.Time
}

// Fingerprint returns a short, display-safe prefix of the key.
func (k *EncryptionKey) Fingerprint() string {
	if len(k.Value) <= fingerprintLength {
		return k.Value
	}
	return k.Value[:fingerprintLength]
}

// CredentialStore persists role credentials, their history and the encryption key.
type CredentialStore interface {
	// Get returns the live credential for a role, or ErrNotFound.
	Get(ctx context.Context, role Role) (*Credential, error)

	// Set replaces the live credential for cred.Role.
	Set(ctx context.Context, cred *Credential) error

	// Revoke deletes the role's hash and expiry together.
	Revoke(ctx context.Context, role Role) error

	// AppendHistory records a rotation in the audit trail.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error

	// ListHistory returns up to limit entries, newest first.
	ListHistory(ctx context.Context, limit int) ([]*HistoryEntry, error)

	// GetEncryptionKey returns the current encryption key, or ErrNotFound.
	GetEncryptionKey(ctx context.Context) (*EncryptionKey, error)

	// SetEncryptionKey replaces the encryption key.
	SetEncryptionKey(ctx context.Context, key *EncryptionKey) error
}
