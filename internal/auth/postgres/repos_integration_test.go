// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/internal/auth/postgres"
)

var _ = Describe("CredentialRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.CredentialRepository
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		resetAuthTables(ctx, env.pool)
		repo = postgres.NewCredentialRepository(env.pool)
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	It("reports a missing credential as not found", func() {
		_, err := repo.Get(ctx, auth.RoleCouple)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("round-trips a visitor credential with its expiry", func() {
		expiry := now.Add(24 * time.Hour)
		cred, err := auth.NewCredential(auth.RoleVisitor, "hash-v", &expiry, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Set(ctx, cred)).To(Succeed())

		got, err := repo.Get(ctx, auth.RoleVisitor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SecretHash).To(Equal("hash-v"))
		Expect(got.ExpiresAt).NotTo(BeNil())
		Expect(got.ExpiresAt.Equal(expiry)).To(BeTrue())
	})

	It("clears a stale expiry when the visitor password is replaced without one", func() {
		expiry := now.Add(time.Hour)
		first, _ := auth.NewCredential(auth.RoleVisitor, "hash-1", &expiry, now)
		Expect(repo.Set(ctx, first)).To(Succeed())

		second, _ := auth.NewCredential(auth.RoleVisitor, "hash-2", nil, now)
		Expect(repo.Set(ctx, second)).To(Succeed())

		got, err := repo.Get(ctx, auth.RoleVisitor)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SecretHash).To(Equal("hash-2"))
		Expect(got.ExpiresAt).To(BeNil())
	})

	It("revokes the hash and expiry together", func() {
		expiry := now.Add(time.Hour)
		cred, _ := auth.NewCredential(auth.RoleVisitor, "hash-v", &expiry, now)
		Expect(repo.Set(ctx, cred)).To(Succeed())

		Expect(repo.Revoke(ctx, auth.RoleVisitor)).To(Succeed())

		_, err := repo.Get(ctx, auth.RoleVisitor)
		Expect(err).To(MatchError(auth.ErrNotFound))

		var n int
		Expect(env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM settings WHERE key = $1`,
			auth.KeyVisitorPasswordExpires).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("lists history newest first and honors the limit", func() {
		for i, role := range []auth.Role{auth.RoleCouple, auth.RoleVisitor, auth.RoleVisitor} {
			cred, _ := auth.NewCredential(role, "h", nil, now.Add(time.Duration(i)*time.Minute))
			Expect(repo.AppendHistory(ctx, auth.NewHistoryEntry(cred))).To(Succeed())
		}

		entries, err := repo.ListHistory(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].CreatedAt.After(entries[1].CreatedAt)).To(BeTrue())
		Expect(entries[0].Role).To(Equal(auth.RoleVisitor))
	})

	It("stores and replaces the encryption key", func() {
		Expect(repo.SetEncryptionKey(ctx, &auth.EncryptionKey{Value: "first", UpdatedAt: now})).To(Succeed())
		Expect(repo.SetEncryptionKey(ctx, &auth.EncryptionKey{Value: "second", UpdatedAt: now})).To(Succeed())

		key, err := repo.GetEncryptionKey(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(key.Value).To(Equal("second"))
	})
})

var _ = Describe("SessionRepository", func() {
	var (
		ctx   context.Context
		repo  *postgres.SessionRepository
		login time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		resetAuthTables(ctx, env.pool)
		repo = postgres.NewSessionRepository(env.pool)
		login = time.Now().UTC().Truncate(time.Microsecond)
	})

	newSession := func(role auth.Role, expiresAt *time.Time, lifetime time.Duration) *auth.Session {
		_, hash, err := auth.GenerateSessionToken()
		Expect(err).NotTo(HaveOccurred())
		s, err := auth.NewSession(role, hash, auth.ClientInfo{IPAddress: "203.0.113.9", UserAgent: "ginkgo"},
			login, login.Add(lifetime), expiresAt)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("persists and resolves a session by token hash", func() {
		expiry := login.Add(2 * time.Hour)
		s := newSession(auth.RoleVisitor, &expiry, time.Hour)
		Expect(repo.Create(ctx, s)).To(Succeed())

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(s.ID))
		Expect(got.Role).To(Equal(auth.RoleVisitor))
		Expect(got.ExpiresAt).NotTo(BeNil())
		Expect(got.ExpiresAt.Equal(expiry)).To(BeTrue())
		Expect(got.IPAddress).To(Equal("203.0.113.9"))
	})

	It("rejects a duplicate token hash", func() {
		s := newSession(auth.RoleCouple, nil, time.Hour)
		Expect(repo.Create(ctx, s)).To(Succeed())

		dup := newSession(auth.RoleCouple, nil, time.Hour)
		dup.TokenHash = s.TokenHash
		err := repo.Create(ctx, dup)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("duplicate key"))
	})

	It("updates last seen and deletes", func() {
		s := newSession(auth.RoleCouple, nil, time.Hour)
		Expect(repo.Create(ctx, s)).To(Succeed())

		seen := login.Add(5 * time.Minute)
		Expect(repo.UpdateLastSeen(ctx, s.ID, seen)).To(Succeed())
		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LastSeenAt.Equal(seen)).To(BeTrue())

		Expect(repo.Delete(ctx, s.ID)).To(Succeed())
		Expect(repo.Delete(ctx, s.ID)).To(MatchError(auth.ErrNotFound))
	})

	It("deletes by role without touching other roles", func() {
		expiry := login.Add(time.Hour)
		Expect(repo.Create(ctx, newSession(auth.RoleVisitor, &expiry, time.Hour))).To(Succeed())
		Expect(repo.Create(ctx, newSession(auth.RoleVisitor, &expiry, time.Hour))).To(Succeed())
		couple := newSession(auth.RoleCouple, nil, time.Hour)
		Expect(repo.Create(ctx, couple)).To(Succeed())

		n, err := repo.DeleteByRole(ctx, auth.RoleVisitor)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		_, err = repo.GetByTokenHash(ctx, couple.TokenHash)
		Expect(err).NotTo(HaveOccurred())
	})

	It("prunes only sessions past their valid-until", func() {
		short := newSession(auth.RoleCouple, nil, time.Minute)
		long := newSession(auth.RoleCouple, nil, 48*time.Hour)
		Expect(repo.Create(ctx, short)).To(Succeed())
		Expect(repo.Create(ctx, long)).To(Succeed())

		n, err := repo.DeleteExpired(ctx, login.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		_, err = repo.GetByTokenHash(ctx, long.TokenHash)
		Expect(err).NotTo(HaveOccurred())
	})
})
