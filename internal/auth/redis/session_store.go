// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package redis stores sessions in Redis. Keys expire with the session's
// transport-level lifetime, so timed-out sessions disappear without a sweeper.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "lovelog:"

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", cfg.Addr).
			With("db", cfg.DB).
			Wrap(err)
	}
	return client, nil
}

// record is the JSON document stored per session.
type record struct {
	ID         string     `json:"id"`
	TokenHash  string     `json:"token_hash"`
	Role       string     `json:"role"`
	LoginTime  time.Time  `json:"login_time"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ValidUntil time.Time  `json:"valid_until"`
	UserAgent  string     `json:"user_agent"`
	IPAddress  string     `json:"ip_address"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
}

func toRecord(s *auth.Session) record {
	return record{
		ID:         s.ID.String(),
		TokenHash:  s.TokenHash,
		Role:       s.Role.String(),
		LoginTime:  s.LoginTime,
		ExpiresAt:  s.ExpiresAt,
		ValidUntil: s.ValidUntil,
		UserAgent:  s.UserAgent,
		IPAddress:  s.IPAddress,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
	}
}

func (r record) session() (*auth.Session, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", r.ID).Wrap(err)
	}
	role, err := auth.ParseRole(r.Role)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ROLE").With("id", r.ID).Wrap(err)
	}
	return &auth.Session{
		ID:         id,
		TokenHash:  r.TokenHash,
		Role:       role,
		LoginTime:  r.LoginTime,
		ExpiresAt:  r.ExpiresAt,
		ValidUntil: r.ValidUntil,
		UserAgent:  r.UserAgent,
		IPAddress:  r.IPAddress,
		CreatedAt:  r.CreatedAt,
		LastSeenAt: r.LastSeenAt,
	}, nil
}

// SessionStore implements auth.SessionRepository on Redis.
//
// Layout, relative to the prefix:
//
//	session:<token hash>  JSON record, TTL until ValidUntil
//	session-id:<id>       token hash, same TTL
//	role:<role>           set of session ids
type SessionStore struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionStore creates a SessionStore. An empty prefix uses DefaultPrefix.
func NewSessionStore(client goredis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *SessionStore) tokenKey(hash string) string { return s.prefix + "session:" + hash }
func (s *SessionStore) idKey(id string) string      { return s.prefix + "session-id:" + id }
func (s *SessionStore) roleKey(role string) string  { return s.prefix + "role:" + role }

// Create stores a new session. A token hash that already exists is reported
// as SESSION_TOKEN_COLLISION.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	ttl := session.ValidUntil.Sub(s.now())
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			With("session_id", session.ID.String()).
			Errorf("session is already past its lifetime")
	}

	data, err := json.Marshal(toRecord(session))
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "encode session").Wrap(err)
	}

	created, err := s.client.SetNX(ctx, s.tokenKey(session.TokenHash), data, ttl).Result()
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session").
			With("role", session.Role.String()).
			Wrap(err)
	}
	if !created {
		return oops.Code("SESSION_TOKEN_COLLISION").
			With("session_id", session.ID.String()).
			Errorf("session token already exists")
	}

	id := session.ID.String()
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.idKey(id), session.TokenHash, ttl)
		pipe.SAdd(ctx, s.roleKey(session.Role.String()), id)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "index session").
			With("session_id", id).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	rec, err := s.load(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	return rec.session()
}

// UpdateLastSeen updates the LastSeenAt timestamp, keeping the key's TTL.
func (s *SessionStore) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	hash, err := s.hashOf(ctx, id.String())
	if err != nil {
		return err
	}
	rec, err := s.load(ctx, hash)
	if err != nil {
		return err
	}
	rec.LastSeenAt = lastSeen

	data, err := json.Marshal(rec)
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").With("operation", "encode session").Wrap(err)
	}
	err = s.client.SetArgs(ctx, s.tokenKey(hash), data, goredis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, goredis.Nil) {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("operation", "set session").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, id ulid.ULID) error {
	hash, err := s.hashOf(ctx, id.String())
	if err != nil {
		return err
	}
	rec, err := s.load(ctx, hash)
	if err != nil {
		return err
	}
	if _, err := s.remove(ctx, rec.ID, rec.TokenHash, rec.Role); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// DeleteByRole removes every session of role.
func (s *SessionStore) DeleteByRole(ctx context.Context, role auth.Role) (int64, error) {
	ids, err := s.client.SMembers(ctx, s.roleKey(role.String())).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_ROLE_FAILED").
			With("operation", "list role members").
			With("role", role.String()).
			Wrap(err)
	}

	var deleted int64
	for _, id := range ids {
		hash, err := s.client.Get(ctx, s.idKey(id)).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return deleted, oops.Code("SESSION_DELETE_BY_ROLE_FAILED").With("id", id).Wrap(err)
		}
		n, err := s.remove(ctx, id, hash, role.String())
		if err != nil {
			return deleted, oops.Code("SESSION_DELETE_BY_ROLE_FAILED").With("id", id).Wrap(err)
		}
		deleted += n
	}
	return deleted, nil
}

// DeleteExpired removes sessions whose ValidUntil is before now. Most are
// already gone through key expiry; this also drops their stale index entries.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	for _, role := range []auth.Role{auth.RoleCouple, auth.RoleVisitor} {
		ids, err := s.client.SMembers(ctx, s.roleKey(role.String())).Result()
		if err != nil {
			return deleted, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
				With("operation", "list role members").
				With("role", role.String()).
				Wrap(err)
		}
		for _, id := range ids {
			n, err := s.pruneOne(ctx, id, role.String(), now)
			if err != nil {
				return deleted, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("id", id).Wrap(err)
			}
			deleted += n
		}
	}
	return deleted, nil
}

func (s *SessionStore) pruneOne(ctx context.Context, id, role string, now time.Time) (int64, error) {
	hash, err := s.client.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, s.client.SRem(ctx, s.roleKey(role), id).Err()
	}
	if err != nil {
		return 0, err
	}
	rec, err := s.load(ctx, hash)
	if errors.Is(err, auth.ErrNotFound) {
		_, err = s.remove(ctx, id, hash, role)
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	if !rec.ValidUntil.Before(now) {
		return 0, nil
	}
	return s.remove(ctx, id, hash, role)
}

// remove deletes a session and its index entries, returning 1 if the session
// record itself existed.
func (s *SessionStore) remove(ctx context.Context, id, hash, role string) (int64, error) {
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if hash != "" {
			del = pipe.Del(ctx, s.tokenKey(hash))
		}
		pipe.Del(ctx, s.idKey(id))
		pipe.SRem(ctx, s.roleKey(role), id)
		return nil
	})
	if err != nil {
		return 0, err //nolint:wrapcheck // callers wrap with operation context
	}
	if del == nil {
		return 0, nil
	}
	return del.Val(), nil
}

func (s *SessionStore) hashOf(ctx context.Context, id string) (string, error) {
	hash, err := s.client.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", oops.Code("SESSION_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get session id index").
			With("id", id).
			Wrap(err)
	}
	return hash, nil
}

func (s *SessionStore) load(ctx context.Context, hash string) (record, error) {
	raw, err := s.client.Get(ctx, s.tokenKey(hash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return record{}, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return record{}, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, oops.Code("SESSION_DECODE_FAILED").With("operation", "decode session").Wrap(err)
	}
	return rec, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionStore)(nil)
