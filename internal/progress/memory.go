package progress

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps progress entries in process memory. Adequate for a
// single-node deployment; entries vanish on restart, which is acceptable
// because a restarted run rebuilds its entry from dispatch records.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an in-memory progress store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Update merges a partial update into the keyed entry, creating it on first use.
func (s *MemoryStore) Update(ctx context.Context, key string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &Entry{}
		s.entries[key] = entry
	}
	apply(entry, update, time.Now())
	return nil
}

// Read returns a snapshot of the keyed entry.
func (s *MemoryStore) Read(ctx context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}

	snapshot := *entry
	snapshot.Logs = make([]LogLine, len(entry.Logs))
	copy(snapshot.Logs, entry.Logs)
	return snapshot, nil
}

// Delete removes the keyed entry.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
