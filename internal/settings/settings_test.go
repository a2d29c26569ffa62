// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package settings_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/auth/memory"
	"github.com/lovelog/lovelog/internal/settings"
	"github.com/lovelog/lovelog/pkg/errutil"
)

type failingRepo struct{ err error }

func (f failingRepo) Get(context.Context, []string) (map[string]string, error) { return nil, f.err }
func (f failingRepo) Put(context.Context, map[string]string, time.Time) error  { return f.err }

func newService(t *testing.T) (*settings.Service, *memory.CredentialStore) {
	t.Helper()
	creds := memory.NewCredentialStore()
	svc, err := settings.NewService(settings.NewMemoryRepository(), creds)
	require.NoError(t, err)
	return svc, creds
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := settings.NewService(nil, memory.NewCredentialStore())
	errutil.AssertErrorCode(t, err, "SETTINGS_INVALID_DEPENDENCY")

	_, err = settings.NewService(settings.NewMemoryRepository(), nil)
	errutil.AssertErrorCode(t, err, "SETTINGS_INVALID_DEPENDENCY")
}

func TestService_ViewByRole(t *testing.T) {
	ctx := context.Background()
	svc, creds := newService(t)

	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred, err := auth.NewCredential(auth.RoleVisitor, "hash", &expiry, expiry.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, creds.Set(ctx, cred))

	_, err = svc.Update(ctx, map[string]string{settings.KeyCoupleName1: "Ada"})
	require.NoError(t, err)

	t.Run("visitor sees public keys only", func(t *testing.T) {
		view, err := svc.View(ctx, auth.RoleVisitor)
		require.NoError(t, err)
		assert.Len(t, view.Settings, len(settings.PublicKeys))
		assert.Equal(t, "Ada", view.Settings[settings.KeyCoupleName1])
		assert.NotContains(t, view.Settings, settings.KeyVisitorExpires)
	})

	t.Run("couple also sees visitor expiry", func(t *testing.T) {
		view, err := svc.View(ctx, auth.RoleCouple)
		require.NoError(t, err)
		assert.Equal(t, "2026-03-01T12:00:00Z", view.Settings[settings.KeyVisitorExpires])
	})

	t.Run("couple with no visitor password sees an empty expiry", func(t *testing.T) {
		require.NoError(t, creds.Revoke(ctx, auth.RoleVisitor))
		view, err := svc.View(ctx, auth.RoleCouple)
		require.NoError(t, err)
		assert.Contains(t, view.Settings, settings.KeyVisitorExpires)
		assert.Empty(t, view.Settings[settings.KeyVisitorExpires])
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		values  map[string]string
		want    int
		wantErr string
	}{
		{
			name:   "writes public keys and ignores the rest",
			values: map[string]string{settings.KeyCoupleName2: "Grace", auth.KeyCouplePasswordHash: "x", "theme": "dark"},
			want:   1,
		},
		{
			name:   "accepts a valid start date",
			values: map[string]string{settings.KeyLoveStartDate: "2020-05-20"},
			want:   1,
		},
		{
			name:   "clears a start date",
			values: map[string]string{settings.KeyLoveStartDate: ""},
			want:   1,
		},
		{
			name:    "rejects a malformed start date",
			values:  map[string]string{settings.KeyLoveStartDate: "20/05/2020"},
			wantErr: "love_start_date must be a YYYY-MM-DD date",
		},
		{
			name:    "rejects when nothing is writable",
			values:  map[string]string{"visitor_password_hash": "x"},
			wantErr: "no valid settings to update",
		},
		{
			name:    "rejects an empty request",
			values:  map[string]string{},
			wantErr: "no valid settings to update",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			n, err := svc.Update(ctx, tt.values)
			if tt.wantErr != "" {
				errutil.AssertErrorCode(t, err, auth.CodeValidation)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestService_UpdateRejectsOversizedValue(t *testing.T) {
	svc, _ := newService(t)
	long := string(bytes.Repeat([]byte("a"), settings.MaxValueLength+1))

	_, err := svc.Update(context.Background(), map[string]string{settings.KeyCoupleAvatar1: long})
	require.Error(t, err)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, []string{"couple_avatar_1 is too long"}, oopsErr.Context()[auth.DetailsKey])
}

func TestService_RepositoryErrors(t *testing.T) {
	ctx := context.Background()
	svc, err := settings.NewService(failingRepo{err: errors.New("db down")}, memory.NewCredentialStore())
	require.NoError(t, err)

	_, err = svc.View(ctx, auth.RoleVisitor)
	errutil.AssertErrorCode(t, err, "SETTINGS_READ_FAILED")

	_, err = svc.Update(ctx, map[string]string{settings.KeyCoupleName1: "A"})
	errutil.AssertErrorCode(t, err, "SETTINGS_WRITE_FAILED")
}

func TestService_UpdateLogsKeysNotValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, err := settings.NewService(settings.NewMemoryRepository(), memory.NewCredentialStore(), settings.WithLogger(logger))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), map[string]string{settings.KeyCoupleName1: "secret-name"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"updated_keys":["couple_name_1"]`)
	assert.NotContains(t, buf.String(), "secret-name")
}
