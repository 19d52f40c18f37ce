package store

import (
	"context"
	"sync"
)

// MemoryRegistry keeps all stores in process memory. It is the default
// backend and the one used by most tests; entries do not survive restarts.
type MemoryRegistry struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
	order  []string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		stores: make(map[string]*memoryStore),
	}
}

// Open returns the named store, creating it on first use.
func (r *MemoryRegistry) Open(ctx context.Context, name string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[name]; ok {
		return s, nil
	}

	s := &memoryStore{
		name:    name,
		entries: make(map[string]*Entry),
	}
	r.stores[name] = s
	r.order = append(r.order, name)
	return s, nil
}

// Names lists all store names in creation order.
func (r *MemoryRegistry) Names(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names, nil
}

// Destroy removes a store and all of its entries.
func (r *MemoryRegistry) Destroy(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[name]; !ok {
		return nil
	}
	delete(r.stores, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	CacheEntries.WithLabelValues(name).Set(0)
	return nil
}

// Close is a no-op for the memory backend.
func (r *MemoryRegistry) Close() error {
	return nil
}

type memoryStore struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*Entry
	keys    []string // insertion order
}

func (s *memoryStore) Name() string {
	return s.name
}

func (s *memoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		CacheMisses.WithLabelValues(s.name).Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues(s.name).Inc()
	return entry, nil
}

func (s *memoryStore) Put(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.entries[key] = entry
	CacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	CacheEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	return nil
}

func (s *memoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys, nil
}

func (s *memoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
