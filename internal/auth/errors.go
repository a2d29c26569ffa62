// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes surfaced to callers. Transport layers map these to status codes.
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeVisitorExpired          = "VISITOR_EXPIRED"
)

// DetailsKey is the oops context key holding the full list of validation messages.
const DetailsKey = "details"
