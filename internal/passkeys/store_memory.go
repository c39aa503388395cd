package passkeys

import (
	"context"
	"fmt"
	"sync"

	"idmask/pkg/platform/sentinel"
)

// InMemoryStore keeps entries for the life of the process.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]string)}
}

func (s *InMemoryStore) Insert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Key]; ok {
		return fmt.Errorf("passkey %s: %w", entry.Key, sentinel.ErrConflict)
	}
	s.entries[entry.Key] = entry.Value
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("passkey %s: %w", key, sentinel.ErrNotFound)
	}
	return Entry{Key: key, Value: value}, nil
}
