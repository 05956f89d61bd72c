package storage

import (
	"context"
	"sync"
)

// MemKV is an in-memory KV used by tests.
type MemKV struct {
	mu    sync.RWMutex
	items map[string]string

	// FailWrites makes SetItem return an error, for soft-failure tests.
	FailWrites bool
}

func NewMemKV() *MemKV {
	return &MemKV{items: map[string]string{}}
}

func (m *MemKV) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemKV) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWriteFailed
	}
	m.items[key] = value
	return nil
}

func (m *MemKV) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Len reports the number of stored keys.
func (m *MemKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Keys returns a snapshot of stored keys.
func (m *MemKV) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.items))
	for k := range m.items {
		out = append(out, k)
	}
	return out
}
