package cache

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing. It records
// deletions so tests can assert on the invalidation contract, and can be
// switched into a failing mode to exercise best-effort eviction paths.
type MockStore struct {
	mu      sync.RWMutex
	entries map[string]mockEntry
	deleted []string
	failing bool
	failErr error
}

type mockEntry struct {
	value     string
	expiresAt time.Time
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[string]mockEntry)}
}

// FailWith makes every subsequent call return err. Pass nil to restore
// normal behavior.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = err != nil
	m.failErr = err
}

// Get returns the cached value for key, or ErrMiss.
func (m *MockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failing {
		return "", m.failErr
	}
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", ErrMiss
	}
	return e.value, nil
}

// Set stores value under key with the given TTL.
func (m *MockStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return m.failErr
	}
	m.entries[key] = mockEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete evicts the given keys.
func (m *MockStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return m.failErr
	}
	for _, k := range keys {
		delete(m.entries, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

// Deleted returns every key deleted so far, in order.
func (m *MockStore) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// Has reports whether key currently holds an unexpired value.
func (m *MockStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return ok && time.Now().Before(e.expiresAt)
}
