// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/lovelog/lovelog/internal/auth"
)

// MockSessionRepository is a mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, session
func (_m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ret := _m.Called(ctx, session)
	if len(ret) == 0 {
		panic("no return value specified for Create")
	}
	return ret.Error(0)
}

// GetByTokenHash provides a mock function with given fields: ctx, tokenHash
func (_m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ret := _m.Called(ctx, tokenHash)
	if len(ret) == 0 {
		panic("no return value specified for GetByTokenHash")
	}

	var r0 *auth.Session
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*auth.Session)
	}
	return r0, ret.Error(1)
}

// UpdateLastSeen provides a mock function with given fields: ctx, id, lastSeen
func (_m *MockSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	ret := _m.Called(ctx, id, lastSeen)
	if len(ret) == 0 {
		panic("no return value specified for UpdateLastSeen")
	}
	return ret.Error(0)
}

// Delete provides a mock function with given fields: ctx, id
func (_m *MockSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	ret := _m.Called(ctx, id)
	if len(ret) == 0 {
		panic("no return value specified for Delete")
	}
	return ret.Error(0)
}

// DeleteByRole provides a mock function with given fields: ctx, role
func (_m *MockSessionRepository) DeleteByRole(ctx context.Context, role auth.Role) (int64, error) {
	ret := _m.Called(ctx, role)
	if len(ret) == 0 {
		panic("no return value specified for DeleteByRole")
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// DeleteExpired provides a mock function with given fields: ctx, now
func (_m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := _m.Called(ctx, now)
	if len(ret) == 0 {
		panic("no return value specified for DeleteExpired")
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// NewMockSessionRepository creates a new MockSessionRepository. It registers a cleanup
// function that asserts the mock's expectations.
func NewMockSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
