// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Requirement is the access level an operation demands.
type Requirement int

// Requirements.
const (
	AnyAuthenticated Requirement = iota + 1
	CoupleOnly
)

// String returns a log-friendly name for the requirement.
func (r Requirement) String() string {
	switch r {
	case AnyAuthenticated:
		return "any_authenticated"
	case CoupleOnly:
		return "couple_only"
	default:
		return "unknown"
	}
}

// Decision is the outcome of an authorization check.
// Reason is one of CodeAuthenticationRequired or CodeInsufficientPermissions
// when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorize decides whether session satisfies req.
// A nil session is always denied with CodeAuthenticationRequired.
// Unknown requirements deny.
func Authorize(session *Session, req Requirement) Decision {
	if session == nil {
		return Decision{Reason: CodeAuthenticationRequired}
	}

	switch req {
	case AnyAuthenticated:
		if session.Role.Valid() {
			return Decision{Allowed: true}
		}
	case CoupleOnly:
		if session.Role == RoleCouple {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: CodeInsufficientPermissions}
}

// RequestInfo is request metadata recorded when access is denied.
type RequestInfo struct {
	IPAddress string
	Path      string
	UserAgent string
}

// Gate applies Authorize and logs every denial.
type Gate struct {
	logger *slog.Logger
}

// NewGate creates a new Gate.
func NewGate(opts ...Option) *Gate {
	o := buildOptions(opts)
	return &Gate{logger: o.logger}
}

// Check returns nil when session satisfies req, or a coded error otherwise.
func (g *Gate) Check(ctx context.Context, session *Session, req Requirement, info RequestInfo) error {
	d := Authorize(session, req)
	if d.Allowed {
		return nil
	}

	if d.Reason == CodeAuthenticationRequired {
		g.logger.WarnContext(ctx, "unauthenticated access attempt",
			"event", "access_denied",
			"reason", d.Reason,
			"ip", info.IPAddress,
			"path", info.Path,
			"user_agent", info.UserAgent,
		)
		return oops.Code(CodeAuthenticationRequired).
			With("requirement", req.String()).
			Errorf("authentication required")
	}

	g.logger.WarnContext(ctx, "insufficient permissions",
		"event", "access_denied",
		"reason", d.Reason,
		"session_id", session.ID.String(),
		"role", session.Role.String(),
		"path", info.Path,
	)
	return oops.Code(CodeInsufficientPermissions).
		With("requirement", req.String()).
		With("role", session.Role.String()).
		Errorf("access not permitted")
}
