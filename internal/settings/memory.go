// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryRepository creates a MemoryRepository seeded with every public key.
func NewMemoryRepository() *MemoryRepository {
	values := make(map[string]string, len(PublicKeys))
	for _, k := range PublicKeys {
		values[k] = ""
	}
	return &MemoryRepository{values: values}
}

// Get returns the values of the requested keys that exist.
func (r *MemoryRepository) Get(_ context.Context, keys []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := r.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Put stores every value.
func (r *MemoryRepository) Put(_ context.Context, values map[string]string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range values {
		r.values[k] = v
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
