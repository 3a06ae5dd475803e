package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	data     []byte
	storedAt time.Time
}

// Memory is the in-process Layer. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: map[string]entry{},
		now:     now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(stored.storedAt) >= TTL {
		delete(m.entries, key)
		return nil, false
	}
	return cloneBytes(stored.data), true
}

func (m *Memory) Set(_ context.Context, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{
		data:     cloneBytes(data),
		storedAt: m.now(),
	}
}

func (m *Memory) InvalidateAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = map[string]entry{}
}

func cloneBytes(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
