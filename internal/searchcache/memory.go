package searchcache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used when Redis is not configured and in
// tests. Entries are replaced wholesale on write and reaped lazily on
// read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source; tests use this to exercise expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(now) {
		m.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed.
		if cur, still := m.entries[key]; still && cur.Expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[key] = Entry{
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, scope string) (int64, error) {
	prefix := keyPrefix + scope + ":"
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
