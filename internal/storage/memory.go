package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process KV bounded by capacity bytes.
type Memory struct {
	budget *budget

	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory returns an empty store. capacity <= 0 leaves it unbounded.
func NewMemory(capacity int64) *Memory {
	return &Memory{budget: newBudget(capacity), entries: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	commit, ok := m.budget.reserve(key, value)
	if !ok {
		return ErrQuotaExceeded
	}
	m.entries[key] = value
	commit()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.budget.release(key)
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Used reports the bytes held.
func (m *Memory) Used() int64 {
	return m.budget.Used()
}

func (m *Memory) Close() error {
	return nil
}
