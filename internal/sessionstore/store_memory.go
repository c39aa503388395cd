package sessionstore

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"idmask/pkg/platform/sentinel"
)

type memoryEntry[V any] struct {
	key   string
	value V
}

// InMemoryStore keeps entries in a map indexed into an insertion-order list.
type InMemoryStore[V any] struct {
	mu        sync.RWMutex
	namespace Namespace
	maxSize   int
	entries   map[string]*list.Element
	order     *list.List
}

// NewInMemoryStore creates an empty store bounded to maxSize entries after each sweep.
func NewInMemoryStore[V any](namespace Namespace, maxSize int) *InMemoryStore[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &InMemoryStore[V]{
		namespace: namespace,
		maxSize:   maxSize,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
	}
}

// Put inserts or overwrites key. Overwriting keeps the original insertion position.
func (s *InMemoryStore[V]) Put(_ context.Context, key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		el.Value.(*memoryEntry[V]).value = value
		return nil
	}
	s.entries[key] = s.order.PushBack(&memoryEntry[V]{key: key, value: value})
	return nil
}

// Get returns the value stored under key.
func (s *InMemoryStore[V]) Get(_ context.Context, key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%s session %s: %w", s.namespace, key, sentinel.ErrNotFound)
	}
	return el.Value.(*memoryEntry[V]).value, nil
}

// Delete removes key; deleting an absent key is not an error.
func (s *InMemoryStore[V]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
		delete(s.entries, key)
	}
	return nil
}

// Len returns the current number of entries.
func (s *InMemoryStore[V]) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Sweep evicts the oldest entries until at most maxSize remain.
func (s *InMemoryStore[V]) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for len(s.entries) > s.maxSize {
		front := s.order.Front()
		s.order.Remove(front)
		delete(s.entries, front.Value.(*memoryEntry[V]).key)
		evicted++
	}
	return evicted, nil
}
