package cache

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many writes pass between scans for expired entries.
const sweepEvery = 1024

type memoryEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

func (m memoryEntry) expired(now time.Time) bool {
	return !m.expires.IsZero() && !now.Before(m.expires)
}

// Memory is the fallback store. Entries honour their TTL: an expired entry reads as a miss and is dropped,
// and every sweepEvery writes the whole map is swept so keys written once and never read again don't pile up.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	writes int

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}

	if entry.expired(m.now()) {
		m.mu.Lock()
		if current, ok := m.items[key]; ok && current.expired(m.now()) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return "", false
	}
	return entry.value, true
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) {
	now := m.now()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry

	m.writes++
	if m.writes >= sweepEvery {
		m.writes = 0
		for k, v := range m.items {
			if v.expired(now) {
				delete(m.items, k)
			}
		}
	}
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *Memory) Close() error {
	return nil
}

// Len counts stored entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
