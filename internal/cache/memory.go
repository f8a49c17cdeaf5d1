package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend for tests and ephemeral deployments.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]Entry),
	}
}

// MemoryOpener returns an Opener that always hands out b.
func MemoryOpener(b *MemoryBackend) Opener {
	return func(context.Context, Options) (Backend, error) { return b, nil }
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryBackend) Put(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[e.Key] = *e
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]Entry)
	return nil
}

func (m *MemoryBackend) Scan(ctx context.Context, fn func(*Entry) error) error {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.data))
	for _, e := range m.data {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].Key < entries[j].Key
	})
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of stored entries, live or expired.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryBackend) Close() error { return nil }
