// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/samber/oops"
)

// Visitor credential lifetime bounds, in hours.
const (
	MinVisitorHours     = 1
	MaxVisitorHours     = 168
	DefaultVisitorHours = 24
)

// HistoryLimit is the number of history entries returned by default.
const HistoryLimit = 10

// HistoryItem is the client-facing projection of a HistoryEntry. It never carries the hash.
type HistoryItem struct {
	Role      Role
	CreatedAt time.Time
}

// CoupleStatus describes the couple credential.
type CoupleStatus struct {
	IsSet     bool
	UpdatedAt *time.Time
}

// VisitorStatus describes the visitor credential.
type VisitorStatus struct {
	IsSet     bool
	UpdatedAt *time.Time
	ExpiresAt *time.Time
	IsExpired bool
	HoursLeft int
}

// EncryptionKeyStatus describes the encryption key without revealing it.
type EncryptionKeyStatus struct {
	IsSet       bool
	Fingerprint string
	UpdatedAt   *time.Time
}

// PasswordStatus is the overview shown to the couple.
type PasswordStatus struct {
	Couple        CoupleStatus
	Visitor       VisitorStatus
	EncryptionKey EncryptionKeyStatus
}

// VisitorGrant is the result of issuing a visitor credential.
// Password is only filled for generated credentials and is shown exactly once.
type VisitorGrant struct {
	Password  string
	ExpiresAt time.Time
	Hours     int
}

// PasswordManager handles the credential lifecycle: rotation, revocation,
// status reporting and the audit trail.
type PasswordManager struct {
	credentials CredentialStore
	sessions    SessionRepository
	hasher      PasswordHasher
	logger      *slog.Logger
	now         func() time.Time
}

// NewPasswordManager creates a new PasswordManager.
func NewPasswordManager(credentials CredentialStore, sessions SessionRepository, hasher PasswordHasher, opts ...Option) (*PasswordManager, error) {
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
	return &PasswordManager{
		credentials: credentials,
		sessions:    sessions,
		hasher:      hasher,
		logger:      o.logger,
		now:         o.now,
	}, nil
}

// SetCouplePassword replaces the couple password without checking the old one.
// It is meant for operator tooling; clients use ChangeCouplePassword.
func (m *PasswordManager) SetCouplePassword(ctx context.Context, secret string) error {
	if err := ValidateStrength(secret).Err(); err != nil {
		return err
	}
	if err := m.store(ctx, RoleCouple, secret, nil); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "couple password set", "event", "couple_password_set")
	return nil
}

// ChangeCouplePassword replaces the couple password after re-verifying the current one.
func (m *PasswordManager) ChangeCouplePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return validationError("current password and new password are both required")
	}

	cred, err := m.credentials.Get(ctx, RoleCouple)
	if errors.Is(err, ErrNotFound) {
		return validationError("no couple password is set")
	}
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").
			With("operation", "get couple credential").
			Wrap(err)
	}

	if !m.hasher.Verify(current, cred.SecretHash) {
		m.logger.WarnContext(ctx, "couple password change rejected",
			"event", "couple_password_change_rejected",
			"reason", "current password incorrect",
		)
		return validationError("current password is incorrect")
	}

	if err := ValidateStrength(next).Err(); err != nil {
		return err
	}
	if err := m.store(ctx, RoleCouple, next, nil); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "couple password changed", "event", "couple_password_changed")
	return nil
}

// SetVisitorPassword installs secret as the visitor password, valid for hours.
func (m *PasswordManager) SetVisitorPassword(ctx context.Context, secret string, hours int) (*VisitorGrant, error) {
	if secret == "" {
		return nil, validationError("visitor password cannot be empty")
	}
	if err := ValidateStrength(secret).Err(); err != nil {
		return nil, err
	}
	if err := validateHours(hours); err != nil {
		return nil, err
	}

	grant, err := m.storeVisitor(ctx, secret, hours)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "visitor password set",
		"event", "visitor_password_set",
		"expiry_hours", hours,
		"expires_at", grant.ExpiresAt.UTC(),
	)
	return grant, nil
}

// GenerateVisitorPassword installs a random visitor password of the given length,
// valid for hours. The plaintext is returned once in the grant and kept nowhere else.
func (m *PasswordManager) GenerateVisitorPassword(ctx context.Context, hours, length int) (*VisitorGrant, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	if length < MinGeneratedLength || length > MaxGeneratedLength {
		return nil, validationError(fmt.Sprintf("password length must be between %d and %d characters",
			MinGeneratedLength, MaxGeneratedLength))
	}

	secret, err := GenerateRandom(length)
	if err != nil {
		return nil, err
	}

	grant, err := m.storeVisitor(ctx, secret, hours)
	if err != nil {
		return nil, err
	}
	grant.Password = secret

	m.logger.InfoContext(ctx, "visitor password generated",
		"event", "visitor_password_generated",
		"expiry_hours", hours,
		"password_length", length,
		"expires_at", grant.ExpiresAt.UTC(),
	)
	return grant, nil
}

// RevokeVisitorPassword removes the visitor hash and expiry together and ends every
// live visitor session. Returns the number of sessions ended.
func (m *PasswordManager) RevokeVisitorPassword(ctx context.Context) (int64, error) {
	if err := m.credentials.Revoke(ctx, RoleVisitor); err != nil {
		return 0, oops.Code("AUTH_REVOKE_FAILED").
			With("operation", "revoke visitor credential").
			Wrap(err)
	}

	ended, err := m.sessions.DeleteByRole(ctx, RoleVisitor)
	if err != nil {
		return 0, oops.Code("AUTH_REVOKE_FAILED").
			With("operation", "delete visitor sessions").
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "visitor password revoked",
		"event", "visitor_password_revoked",
		"sessions_ended", ended,
	)
	return ended, nil
}

// Status reports which credentials exist and when they change or expire.
func (m *PasswordManager) Status(ctx context.Context) (*PasswordStatus, error) {
	var status PasswordStatus
	now := m.now()

	couple, err := m.lookup(ctx, RoleCouple)
	if err != nil {
		return nil, err
	}
	if couple != nil {
		status.Couple = CoupleStatus{IsSet: true, UpdatedAt: copyTime(&couple.UpdatedAt)}
	}

	visitor, err := m.lookup(ctx, RoleVisitor)
	if err != nil {
		return nil, err
	}
	if visitor != nil {
		status.Visitor.IsSet = true
		status.Visitor.UpdatedAt = copyTime(&visitor.UpdatedAt)
		if visitor.ExpiresAt != nil {
			status.Visitor.ExpiresAt = copyTime(visitor.ExpiresAt)
			status.Visitor.IsExpired = visitor.IsExpiredAt(now)
			if !status.Visitor.IsExpired {
				status.Visitor.HoursLeft = int(math.Ceil(visitor.ExpiresAt.Sub(now).Hours()))
			}
		}
	}

	key, err := m.credentials.GetEncryptionKey(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, oops.Code("AUTH_STATUS_FAILED").
			With("operation", "get encryption key").
			Wrap(err)
	default:
		status.EncryptionKey = EncryptionKeyStatus{
			IsSet:       true,
			Fingerprint: key.Fingerprint(),
			UpdatedAt:   copyTime(&key.UpdatedAt),
		}
	}

	return &status, nil
}

// History returns up to limit rotations, newest first.
// A non-positive limit means HistoryLimit.
func (m *PasswordManager) History(ctx context.Context, limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}

	entries, err := m.credentials.ListHistory(ctx, limit)
	if err != nil {
		return nil, oops.Code("AUTH_HISTORY_FAILED").
			With("operation", "list history").
			With("limit", limit).
			Wrap(err)
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItem{Role: e.Role, CreatedAt: e.CreatedAt})
	}
	return items, nil
}

// Verify reports whether secret matches the role's current credential.
// An unset credential never matches. Expiry is not considered.
func (m *PasswordManager) Verify(ctx context.Context, role Role, secret string) (bool, error) {
	cred, err := m.credentials.Get(ctx, role)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "get credential").
			With("role", role.String()).
			Wrap(err)
	}
	return m.hasher.Verify(secret, cred.SecretHash), nil
}

// EnsureEncryptionKey returns the current encryption key, creating one if none exists.
func (m *PasswordManager) EnsureEncryptionKey(ctx context.Context) (*EncryptionKey, error) {
	key, err := m.credentials.GetEncryptionKey(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_ENCRYPTION_KEY_FAILED").
			With("operation", "get encryption key").
			Wrap(err)
	}
	return m.RegenerateEncryptionKey(ctx)
}

// RegenerateEncryptionKey replaces the encryption key with a fresh one.
func (m *PasswordManager) RegenerateEncryptionKey(ctx context.Context) (*EncryptionKey, error) {
	value, err := GenerateEncryptionKey()
	if err != nil {
		return nil, err
	}

	key := &EncryptionKey{Value: value, UpdatedAt: m.now()}
	if err := m.credentials.SetEncryptionKey(ctx, key); err != nil {
		return nil, oops.Code("AUTH_ENCRYPTION_KEY_FAILED").
			With("operation", "set encryption key").
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "encryption key regenerated",
		"event", "encryption_key_regenerated",
		"fingerprint", key.Fingerprint(),
	)
	return key, nil
}

func (m *PasswordManager) storeVisitor(ctx context.Context, secret string, hours int) (*VisitorGrant, error) {
	expiresAt := m.now().Add(time.Duration(hours) * time.Hour)
	if err := m.store(ctx, RoleVisitor, secret, &expiresAt); err != nil {
		return nil, err
	}
	return &VisitorGrant{ExpiresAt: expiresAt, Hours: hours}, nil
}

// store hashes secret, replaces the role's live credential and records the rotation.
func (m *PasswordManager) store(ctx context.Context, role Role, secret string, expiresAt *time.Time) error {
	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_STORE_FAILED").
			With("operation", "hash password").
			With("role", role.String()).
			Wrap(err)
	}

	cred, err := NewCredential(role, hash, expiresAt, m.now())
	if err != nil {
		return oops.Code("AUTH_PASSWORD_STORE_FAILED").
			With("operation", "create credential").
			With("role", role.String()).
			Wrap(err)
	}

	if err := m.credentials.Set(ctx, cred); err != nil {
		return oops.Code("AUTH_PASSWORD_STORE_FAILED").
			With("operation", "persist credential").
			With("role", role.String()).
			Wrap(err)
	}

	if err := m.credentials.AppendHistory(ctx, NewHistoryEntry(cred)); err != nil {
		m.logger.WarnContext(ctx, "best-effort password history append failed",
			"operation", "append_history",
			"role", role.String(),
			"error", err.Error(),
		)
	}
	return nil
}

// lookup returns the role's credential, or nil when none is set.
func (m *PasswordManager) lookup(ctx context.Context, role Role) (*Credential, error) {
	cred, err := m.credentials.Get(ctx, role)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_STATUS_FAILED").
			With("operation", "get credential").
			With("role", role.String()).
			Wrap(err)
	}
	return cred, nil
}

func validateHours(hours int) error {
	if hours < MinVisitorHours || hours > MaxVisitorHours {
		return validationError(fmt.Sprintf("expiry must be between %d and %d hours",
			MinVisitorHours, MaxVisitorHours))
	}
	return nil
}

func validationError(msg string) error {
	return oops.Code(CodeValidation).With(DetailsKey, []string{msg}).Errorf("%s", msg)
}
