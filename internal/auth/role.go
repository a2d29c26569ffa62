// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import "github.com/samber/oops"

// Role is the authorization tier of a session.
type Role string

// Supported roles.
const (
	RoleCouple  Role = "couple"
	RoleVisitor Role = "visitor"
)

// loginOrder is the priority in which credentials are checked at login.
// If a secret matches both, the couple wins.
var loginOrder = []Role{RoleCouple, RoleVisitor}

// Settings keys backing each role's credential.
const (
	KeyCouplePasswordHash     = "couple_password_hash"
	KeyVisitorPasswordHash    = "visitor_password_hash"
	KeyVisitorPasswordExpires = "visitor_password_expires"
	KeyEncryptionKey          = "encryption_key"
)

// ParseRole converts a stored or submitted role name into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCouple, RoleVisitor:
		return Role(s), nil
	default:
		return "", oops.Code("AUTH_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
	}
}

// String returns the wire name of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleCouple || r == RoleVisitor
}

// CanExpire reports whether credentials for this role may carry an expiry.
func (r Role) CanExpire() bool {
	return r == RoleVisitor
}

// HashKey returns the settings key holding the role's password hash.
func (r Role) HashKey() string {
	if r == RoleCouple {
		return KeyCouplePasswordHash
	}
	return KeyVisitorPasswordHash
}

// DisplayName is the human label used in history listings.
func (r Role) DisplayName() string {
	switch r {
	case RoleCouple:
		return "Couple password"
	case RoleVisitor:
		return "Visitor password"
	default:
		return string(r)
	}
}
