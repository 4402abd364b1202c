package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory is an in-process Cache backed by a mutex-guarded map. Expired
// entries are dropped lazily on read and swept opportunistically on write.
// Values are kept as JSON bytes so Get semantics match the Redis backend.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable for tests.
	now func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache. A non-positive ttl stores nothing.
func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	now := m.now()
	// Sweep a handful of expired neighbors while we hold the lock.
	swept := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			if swept++; swept >= 16 {
				break
			}
		}
	}
	m.entries[key] = memoryEntry{data: data, expiresAt: now.Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Delete implements Cache. Deleting a missing key is a no-op.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
