// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package memory provides process-local implementations of the auth stores.
// State is lost on restart; they back the "memory" session driver and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
)

// CredentialStore is an in-memory auth.CredentialStore.
type CredentialStore struct {
	mu          sync.RWMutex
	credentials map[auth.Role]auth.Credential
	history     []auth.HistoryEntry
	key         *auth.EncryptionKey
}

// NewCredentialStore creates an empty CredentialStore.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{credentials: make(map[auth.Role]auth.Credential)}
}

// Get returns the live credential for role.
func (s *CredentialStore) Get(_ context.Context, role auth.Role) (*auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[role]
	if !ok {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("role", role.String()).Wrap(auth.ErrNotFound)
	}
	return cloneCredential(cred), nil
}

// Set replaces the live credential for cred.Role.
func (s *CredentialStore) Set(_ context.Context, cred *auth.Credential) error {
	if cred == nil {
		return oops.Code("CREDENTIAL_SET_FAILED").Errorf("credential is required")
	}
	s.mu.Lock()
	s.credentials[cred.Role] = *cloneCredential(*cred)
	s.mu.Unlock()
	return nil
}

// Revoke removes the role's credential.
func (s *CredentialStore) Revoke(_ context.Context, role auth.Role) error {
	s.mu.Lock()
	delete(s.credentials, role)
	s.mu.Unlock()
	return nil
}

// AppendHistory records a rotation.
func (s *CredentialStore) AppendHistory(_ context.Context, entry *auth.HistoryEntry) error {
	if entry == nil {
		return oops.Code("HISTORY_APPEND_FAILED").Errorf("history entry is required")
	}
	s.mu.Lock()
	s.history = append(s.history, *entry)
	s.mu.Unlock()
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (s *CredentialStore) ListHistory(_ context.Context, limit int) ([]*auth.HistoryEntry, error) {
	s.mu.RLock()
	entries := make([]*auth.HistoryEntry, 0, len(s.history))
	for i := range s.history {
		e := s.history[i]
		entries = append(entries, &e)
	}
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID.Compare(entries[j].ID) > 0
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetEncryptionKey returns the current encryption key.
func (s *CredentialStore) GetEncryptionKey(_ context.Context) (*auth.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return nil, oops.Code("ENCRYPTION_KEY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	k := *s.key
	return &k, nil
}

// SetEncryptionKey replaces the encryption key.
func (s *CredentialStore) SetEncryptionKey(_ context.Context, key *auth.EncryptionKey) error {
	if key == nil {
		return oops.Code("ENCRYPTION_KEY_SET_FAILED").Errorf("encryption key is required")
	}
	k := *key
	s.mu.Lock()
	s.key = &k
	s.mu.Unlock()
	return nil
}

func cloneCredential(c auth.Credential) *auth.Credential {
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

var _ auth.CredentialStore = (*CredentialStore)(nil)
