// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package auth provides two-tier session authentication for Lovelog.
//
// # Roles
//
// A session belongs to one of two roles. RoleCouple has full control.
// RoleVisitor is read-only and its credential carries an expiry.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewCredential - creates a Credential with a validated role, hash and expiry
//   - NewSession - creates a Session bound to a token hash and lifetime
//   - NewHistoryEntry - creates an audit entry for a stored credential
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Services
//
//   - Authority - login, logout and token resolution
//   - VisitorExpiryEnforcer - lazily ends expired visitor sessions
//   - Gate - role-based authorization with denial logging
//   - PasswordManager - credential rotation, revocation, status and history
//
// Services take their stores as interfaces and are created with New* constructors
// that validate dependencies.
package auth
