// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
)

// SessionStore is an in-memory auth.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[ulid.ULID]auth.Session
	byToken  map[string]ulid.ULID
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[ulid.ULID]auth.Session),
		byToken:  make(map[string]ulid.ULID),
	}
}

// Create stores a new session.
func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	if session == nil {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("session is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[session.TokenHash]; exists {
		return oops.Code("SESSION_CREATE_FAILED").
			With("session_id", session.ID.String()).
			Errorf("token hash already in use")
	}
	s.sessions[session.ID] = *cloneSession(*session)
	s.byToken[session.TokenHash] = session.ID
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (s *SessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return cloneSession(s.sessions[id]), nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (s *SessionStore) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	session.LastSeenAt = lastSeen
	s.sessions[id] = session
	return nil
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	s.remove(session)
	return nil
}

// DeleteByRole removes every session of role.
func (s *SessionStore) DeleteByRole(_ context.Context, role auth.Role) (int64, error) {
	return s.deleteWhere(func(session auth.Session) bool { return session.Role == role }), nil
}

// DeleteExpired removes sessions whose ValidUntil is before now.
func (s *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(session auth.Session) bool { return session.ValidUntil.Before(now) }), nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) deleteWhere(match func(auth.Session) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, session := range s.sessions {
		if match(session) {
			s.remove(session)
			n++
		}
	}
	return n
}

// remove must be called with mu held.
func (s *SessionStore) remove(session auth.Session) {
	delete(s.sessions, session.ID)
	delete(s.byToken, session.TokenHash)
}

func cloneSession(session auth.Session) *auth.Session {
	if session.ExpiresAt != nil {
		t := *session.ExpiresAt
		session.ExpiresAt = &t
	}
	return &session
}

var _ auth.SessionRepository = (*SessionStore)(nil)
