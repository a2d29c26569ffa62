// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/pkg/errutil"
)

func TestNewCredential(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Hour)

	t.Run("couple credential", func(t *testing.T) {
		cred, err := auth.NewCredential(auth.RoleCouple, "hash", nil, now)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleCouple, cred.Role)
		assert.Equal(t, now, cred.UpdatedAt)
		assert.Nil(t, cred.ExpiresAt)
	})

	t.Run("couple credential cannot expire", func(t *testing.T) {
		_, err := auth.NewCredential(auth.RoleCouple, "hash", &expires, now)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_INVALID_EXPIRY")
	})

	t.Run("visitor credential may expire", func(t *testing.T) {
		cred, err := auth.NewCredential(auth.RoleVisitor, "hash", &expires, now)
		require.NoError(t, err)
		assert.Equal(t, &expires, cred.ExpiresAt)
	})

	t.Run("empty hash", func(t *testing.T) {
		_, err := auth.NewCredential(auth.RoleVisitor, "", nil, now)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_INVALID_HASH")
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := auth.NewCredential(auth.Role("guest"), "hash", nil, now)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_INVALID_ROLE")
	})
}

func TestCredential_IsExpiredAt(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Hour)
	cred, err := auth.NewCredential(auth.RoleVisitor, "hash", &expires, now)
	require.NoError(t, err)

	assert.False(t, cred.IsExpiredAt(expires.Add(-time.Second)))
	assert.False(t, cred.IsExpiredAt(expires))
	assert.True(t, cred.IsExpiredAt(expires.Add(time.Second)))

	forever, err := auth.NewCredential(auth.RoleVisitor, "hash", nil, now)
	require.NoError(t, err)
	assert.False(t, forever.IsExpiredAt(now.Add(1000*time.Hour)))
}

func TestNewHistoryEntry(t *testing.T) {
	now := time.Now()
	cred, err := auth.NewCredential(auth.RoleVisitor, "hash", nil, now)
	require.NoError(t, err)

	entry := auth.NewHistoryEntry(cred)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, auth.RoleVisitor, entry.Role)
	assert.Equal(t, "hash", entry.SecretHash)
	assert.Equal(t, now, entry.CreatedAt)
}

func TestEncryptionKey_Fingerprint(t *testing.T) {
	assert.Equal(t, "0123abcd", (&auth.EncryptionKey{Value: "0123abcdef"}).Fingerprint())
	assert.Equal(t, "short", (&auth.EncryptionKey{Value: "short"}).Fingerprint())
}

func TestParseRole(t *testing.T) {
	role, err := auth.ParseRole("couple")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleCouple, role)

	role, err = auth.ParseRole("visitor")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleVisitor, role)
	assert.True(t, role.CanExpire())
	assert.Equal(t, auth.KeyVisitorPasswordHash, role.HashKey())

	_, err = auth.ParseRole("admin")
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_ROLE")
}
