package database

import (
	"context"
	"sync"
)

// Memory is a non-durable in-process store for tests and throwaway runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// Ensure Memory implements Store and Batcher.
var (
	_ Store   = (*Memory)(nil)
	_ Batcher = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// DatabaseType returns the backend name.
func (m *Memory) DatabaseType() string { return "Memory" }

// Get retrieves the value stored under key.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set saves value under key.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// SetMany saves all entries under a single lock.
func (m *Memory) SetMany(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[e.Key] = e.Value
	}
	return nil
}
