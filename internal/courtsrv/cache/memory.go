package cache

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/config"
)

type memoryEntry struct {
	Entry
	expiresAt time.Time
}

// Memory is a process-local store. Expired entries are dropped when read and
// swept on write.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the live entry for key. An expired entry is dropped
// and reported as a miss.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return Entry{}, false, nil
	}
	out := e.Entry
	out.Results = maps.Clone(e.Results)
	return out, true, nil
}

// Put stores results under key for ttl and sweeps expired entries.
func (m *Memory) Put(_ context.Context, key string, results availability.Results, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{
		Entry: Entry{
			Key:      key,
			Results:  maps.Clone(results),
			CachedAt: now,
		},
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Backend() string {
	return config.CacheBackendMemory
}
