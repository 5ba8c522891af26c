package ratelimiter

import (
	"fmt"
	"sync"
)

// Manager hands out one Limiter per (client id, library id) pair (spec §9
// Open Question, resolved: rate limiting is scoped per client *within* a
// library, so one client's transfer in library A never starves its own
// transfer in library B, and two clients in the same library don't share a
// bucket).
type Manager struct {
	mu       sync.Mutex
	capacity map[string]uint64 // library id -> bytes/sec cap
	limiters map[string]*Limiter
}

// NewManager builds a Manager from the per-library rate caps established at
// startup (spec §3 Library: "optional byte/second rate cap").
func NewManager(libraryCaps map[string]uint64) *Manager {
	return &Manager{
		capacity: libraryCaps,
		limiters: make(map[string]*Limiter),
	}
}

// Get returns the Limiter for (clientID, libraryID), creating it on first
// use. Lookup is O(1) and safe for concurrent callers across sessions.
func (m *Manager) Get(clientID, libraryID string) *Limiter {
	key := fmt.Sprintf("%s\x00%s", clientID, libraryID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters[key]; ok {
		return l
	}

	l := New(m.capacity[libraryID])
	m.limiters[key] = l
	return l
}
