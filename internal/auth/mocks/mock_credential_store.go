// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lovelog/lovelog/internal/auth"
)

// MockCredentialStore is a mock of auth.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, role
func (_m *MockCredentialStore) Get(ctx context.Context, role auth.Role) (*auth.Credential, error) {
	ret := _m.Called(ctx, role)
	if len(ret) == 0 {
		panic("no return value specified for Get")
	}

	if rf, ok := ret.Get(0).(func(context.Context, auth.Role) (*auth.Credential, error)); ok {
		return rf(ctx, role)
	}
	var r0 *auth.Credential
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*auth.Credential)
	}
	return r0, ret.Error(1)
}

// Set provides a mock function with given fields: ctx, cred
func (_m *MockCredentialStore) Set(ctx context.Context, cred *auth.Credential) error {
	ret := _m.Called(ctx, cred)
	if len(ret) == 0 {
		panic("no return value specified for Set")
	}
	return ret.Error(0)
}

// Revoke provides a mock function with given fields: ctx, role
func (_m *MockCredentialStore) Revoke(ctx context.Context, role auth.Role) error {
	ret := _m.Called(ctx, role)
	if len(ret) == 0 {
		panic("no return value specified for Revoke")
	}
	return ret.Error(0)
}

// AppendHistory provides a mock function with given fields: ctx, entry
func (_m *MockCredentialStore) AppendHistory(ctx context.Context, entry *auth.HistoryEntry) error {
	ret := _m.Called(ctx, entry)
	if len(ret) == 0 {
		panic("no return value specified for AppendHistory")
	}
	return ret.Error(0)
}

// ListHistory provides a mock function with given fields: ctx, limit
func (_m *MockCredentialStore) ListHistory(ctx context.Context, limit int) ([]*auth.HistoryEntry, error) {
	ret := _m.Called(ctx, limit)
	if len(ret) == 0 {
		panic("no return value specified for ListHistory")
	}

	var r0 []*auth.HistoryEntry
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*auth.HistoryEntry)
	}
	return r0, ret.Error(1)
}

// GetEncryptionKey provides a mock function with given fields: ctx
func (_m *MockCredentialStore) GetEncryptionKey(ctx context.Context) (*auth.EncryptionKey, error) {
	ret := _m.Called(ctx)
	if len(ret) == 0 {
		panic("no return value specified for GetEncryptionKey")
	}

	var r0 *auth.EncryptionKey
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*auth.EncryptionKey)
	}
	return r0, ret.Error(1)
}

// SetEncryptionKey provides a mock function with given fields: ctx, key
func (_m *MockCredentialStore) SetEncryptionKey(ctx context.Context, key *auth.EncryptionKey) error {
	ret := _m.Called(ctx, key)
	if len(ret) == 0 {
		panic("no return value specified for SetEncryptionKey")
	}
	return ret.Error(0)
}

// NewMockCredentialStore creates a new MockCredentialStore. It registers a cleanup
// function that asserts the mock's expectations.
func NewMockCredentialStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
