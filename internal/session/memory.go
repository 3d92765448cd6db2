package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      *Data
	expiresAt time.Time
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Data, bool) {
	_ = ctx
	m.mu.RLock()
	entry, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		m.Delete(ctx, key)
		return nil, false
	}
	cloned := *entry.data
	return &cloned, true
}

func (m *MemoryStore) Set(ctx context.Context, key string, data *Data, ttl time.Duration) {
	_ = ctx
	if data == nil {
		return
	}
	cloned := *data
	m.mu.Lock()
	m.sessions[key] = memoryEntry{
		data:      &cloned,
		expiresAt: time.Now().Add(ttl),
	}
	m.mu.Unlock()
}

func (m *MemoryStore) Delete(ctx context.Context, key string) {
	_ = ctx
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
}

func (m *MemoryStore) Close() error {
	return nil
}
