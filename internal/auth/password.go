// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Password strength constraints.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 100
)

// Generated visitor password constraints.
const (
	MinGeneratedLength     = 6
	MaxGeneratedLength     = 20
	DefaultGeneratedLength = 8
)

// passwordAlphabet is the character set used for generated passwords.
const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// encryptionKeyBytes is the size of a generated encryption key before hex encoding.
const encryptionKeyBytes = 32

// StrengthResult is the outcome of a password strength check.
type StrengthResult struct {
	Valid  bool
	Errors []string
}

// ValidateStrength checks a password against the strength rules.
// Every violated rule is reported, not only the first one.
func ValidateStrength(password string) StrengthResult {
	if password == "" {
		return StrengthResult{Errors: []string{"password cannot be empty"}}
	}

	var errs []string
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if n > MaxPasswordLength {
		errs = append(errs, fmt.Sprintf("password must be at most %d characters", MaxPasswordLength))
	}

	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}

// Err converts a failed result into a validation error carrying every message.
// Returns nil for a valid result.
func (r StrengthResult) Err() error {
	if r.Valid {
		return nil
	}
	return oops.Code(CodeValidation).
		With(DetailsKey, r.Errors).
		Errorf("password does not meet requirements")
}

// GenerateRandom returns a password of the given length drawn uniformly from
// passwordAlphabet. Length bounds are the caller's responsibility.
func GenerateRandom(length int) (string, error) {
	if length <= 0 {
		return "", oops.Code("AUTH_INVALID_LENGTH").With("length", length).Errorf("length must be positive")
	}

	limit := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", oops.Code("AUTH_RANDOM_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// GenerateEncryptionKey returns a new hex-encoded 256-bit key.
func GenerateEncryptionKey() (string, error) {
	b := make([]byte, encryptionKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("AUTH_RANDOM_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", encryptionKeyBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
