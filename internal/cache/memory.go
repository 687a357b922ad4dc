package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore is a concurrency-safe in-process Store. It backs development
// setups without redis and doubles as the test store. Expired entries are
// dropped lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	clock   clockwork.Clock
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty store reading time from the given clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		clock:   clock,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := m.entries[key]; ok && !m.clock.Now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}
