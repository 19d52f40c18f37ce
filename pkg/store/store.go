package store

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a named, insertion-ordered collection of request-key → response
// snapshot entries. "Oldest" always means earliest inserted and still present.
type Store interface {
	// Name returns the versioned store name (e.g. "static-v1").
	Name() string

	// Get retrieves an entry by request key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores an entry under the request key. Re-putting an existing key
	// replaces the entry in place and keeps its original insertion position.
	Put(ctx context.Context, key string, entry *Entry) error

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all entry keys in insertion order, oldest first.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of entries in the store.
	Len(ctx context.Context) (int, error)
}

// Registry manages the set of named stores on one backend.
type Registry interface {
	// Open returns the store with the given name, creating it if needed.
	// Opening an existing name returns the same store with its entries intact.
	Open(ctx context.Context, name string) (Store, error)

	// Names lists all store names currently present on the backend.
	Names(ctx context.Context) ([]string, error)

	// Destroy removes a store and all of its entries.
	// Destroying an absent name is not an error.
	Destroy(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}

// TotalEntries sums entry counts across every store in the registry.
func TotalEntries(ctx context.Context, r Registry) (int, error) {
	names, err := r.Names(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, name := range names {
		s, err := r.Open(ctx, name)
		if err != nil {
			return 0, err
		}
		n, err := s.Len(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
