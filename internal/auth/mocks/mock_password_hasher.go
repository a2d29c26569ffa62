// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package mocks holds testify mocks for the auth interfaces.
package mocks

import "github.com/stretchr/testify/mock"

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// Hash provides a mock function with given fields: password
func (_m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := _m.Called(password)
	if len(ret) == 0 {
		panic("no return value specified for Hash")
	}

	if rf, ok := ret.Get(0).(func(string) (string, error)); ok {
		return rf(password)
	}
	return ret.String(0), ret.Error(1)
}

// Verify provides a mock function with given fields: password, hash
func (_m *MockPasswordHasher) Verify(password, hash string) bool {
	ret := _m.Called(password, hash)
	if len(ret) == 0 {
		panic("no return value specified for Verify")
	}

	if rf, ok := ret.Get(0).(func(string, string) bool); ok {
		return rf(password, hash)
	}
	return ret.Bool(0)
}

// NewMockPasswordHasher creates a new MockPasswordHasher. It registers a cleanup
// function that asserts the mock's expectations.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
