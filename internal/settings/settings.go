// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package settings serves the blog's public display settings.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
)

// Public setting keys. Every authenticated role may read them; only the couple writes.
const (
	KeyLoveStartDate = "love_start_date"
	KeyCoupleName1   = "couple_name_1"
	KeyCoupleName2   = "couple_name_2"
	KeyCoupleAvatar1 = "couple_avatar_1"
	KeyCoupleAvatar2 = "couple_avatar_2"
)

// KeyVisitorExpires is the extra key the couple sees in its view.
const KeyVisitorExpires = auth.KeyVisitorPasswordExpires

// MaxValueLength bounds a single setting value.
const MaxValueLength = 2048

// dateLayout is the format of love_start_date.
const dateLayout = "2006-01-02"

// PublicKeys lists the public keys in display order.
var PublicKeys = []string{KeyLoveStartDate, KeyCoupleName1, KeyCoupleName2, KeyCoupleAvatar1, KeyCoupleAvatar2}

// IsPublic reports whether key is a public setting.
func IsPublic(key string) bool {
	return slices.Contains(PublicKeys, key)
}

// Repository persists setting values.
type Repository interface {
	// Get returns the values of the requested keys that exist.
	Get(ctx context.Context, keys []string) (map[string]string, error)

	// Put upserts every value in one transaction.
	Put(ctx context.Context, values map[string]string, now time.Time) error
}

// View is the settings projection returned to a role.
type View struct {
	Role     auth.Role
	Settings map[string]string
}

// Service reads and writes public settings.
type Service struct {
	repo        Repository
	credentials auth.CredentialStore
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service.
func NewService(repo Repository, credentials auth.CredentialStore, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("SETTINGS_INVALID_DEPENDENCY").Errorf("settings repository is required")
	}
	if credentials == nil {
		return nil, oops.Code("SETTINGS_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	s := &Service{repo: repo, credentials: credentials, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// View returns the settings visible to role. Missing keys read as "".
// The couple also sees when the visitor password expires.
func (s *Service) View(ctx context.Context, role auth.Role) (*View, error) {
	values, err := s.repo.Get(ctx, PublicKeys)
	if err != nil {
		return nil, oops.Code("SETTINGS_READ_FAILED").With("role", role.String()).Wrap(err)
	}

	out := make(map[string]string, len(PublicKeys)+1)
	for _, key := range PublicKeys {
		out[key] = values[key]
	}

	if role == auth.RoleCouple {
		out[KeyVisitorExpires] = ""
		cred, err := s.credentials.Get(ctx, auth.RoleVisitor)
		switch {
		case errors.Is(err, auth.ErrNotFound):
		case err != nil:
			return nil, oops.Code("SETTINGS_READ_FAILED").
				With("operation", "get visitor credential").
				Wrap(err)
		case cred.ExpiresAt != nil:
			out[KeyVisitorExpires] = cred.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}

	s.logger.DebugContext(ctx, "settings served", "role", role.String(), "count", len(out))
	return &View{Role: role, Settings: out}, nil
}

// Update writes the public keys in values and returns how many were written.
// Keys that are not public are ignored; a request with no public key fails validation.
func (s *Service) Update(ctx context.Context, values map[string]string) (int, error) {
	updates := make(map[string]string, len(values))
	var problems []string
	for key, value := range values {
		if !IsPublic(key) {
			continue
		}
		if len(value) > MaxValueLength {
			problems = append(problems, key+" is too long")
			continue
		}
		if key == KeyLoveStartDate && value != "" {
			if _, err := time.Parse(dateLayout, value); err != nil {
				problems = append(problems, key+" must be a YYYY-MM-DD date")
				continue
			}
		}
		updates[key] = value
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return 0, oops.Code(auth.CodeValidation).
			With(auth.DetailsKey, problems).
			Errorf("%s", problems[0])
	}
	if len(updates) == 0 {
		return 0, oops.Code(auth.CodeValidation).
			With(auth.DetailsKey, []string{"no valid settings to update"}).
			Errorf("no valid settings to update")
	}

	if err := s.repo.Put(ctx, updates, s.now()); err != nil {
		return 0, oops.Code("SETTINGS_WRITE_FAILED").With("count", len(updates)).Wrap(err)
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.logger.InfoContext(ctx, "settings updated", "event", "settings_updated", "updated_keys", keys)
	return len(updates), nil
}
