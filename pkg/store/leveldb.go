package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB key layout, per store:
//
//	s:<name>              store marker
//	q:<name>              insertion sequence counter
//	e:<name>:<key>        JSON entry
//	k:<name>:<key>        padded sequence assigned to the key
//	o:<name>:<seq>        request key, ordered by sequence
//
// Iterating the o: prefix yields keys in insertion order because the
// sequence is zero-padded and LevelDB iterates lexicographically.

// LevelDBRegistry persists stores in a local LevelDB database.
type LevelDBRegistry struct {
	db *leveldb.DB
	mu sync.Mutex // guards sequence allocation
}

// OpenLevelDBRegistry opens (or creates) a LevelDB-backed registry at path.
func OpenLevelDBRegistry(path string) (*LevelDBRegistry, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBRegistry{db: db}, nil
}

// Open returns the named store, registering the name on first use.
func (r *LevelDBRegistry) Open(ctx context.Context, name string) (Store, error) {
	marker := []byte("s:" + name)
	ok, err := r.db.Has(marker, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb has: %w", err)
	}
	if !ok {
		if err := r.db.Put(marker, nil, nil); err != nil {
			return nil, fmt.Errorf("leveldb put: %w", err)
		}
	}
	return &levelStore{name: name, reg: r}, nil
}

// Names lists all registered store names.
func (r *LevelDBRegistry) Names(ctx context.Context) ([]string, error) {
	it := r.db.NewIterator(util.BytesPrefix([]byte("s:")), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), "s:"))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("leveldb iterate: %w", err)
	}
	return names, nil
}

// Destroy removes a store, its entries and its bookkeeping keys.
func (r *LevelDBRegistry) Destroy(ctx context.Context, name string) error {
	batch := new(leveldb.Batch)
	for _, prefix := range []string{"e:" + name + ":", "k:" + name + ":", "o:" + name + ":"} {
		it := r.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for it.Next() {
			k := make([]byte, len(it.Key()))
			copy(k, it.Key())
			batch.Delete(k)
		}
		err := it.Error()
		it.Release()
		if err != nil {
			CacheErrors.WithLabelValues("destroy").Inc()
			return fmt.Errorf("leveldb iterate: %w", err)
		}
	}
	batch.Delete([]byte("q:" + name))
	batch.Delete([]byte("s:" + name))

	if err := r.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("destroy").Inc()
		return fmt.Errorf("leveldb write: %w", err)
	}
	CacheEntries.WithLabelValues(name).Set(0)
	return nil
}

// Close closes the underlying database.
func (r *LevelDBRegistry) Close() error {
	return r.db.Close()
}

// nextSeq allocates the next insertion sequence for a store.
func (r *LevelDBRegistry) nextSeq(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seqKey := []byte("q:" + name)
	var seq uint64
	if data, err := r.db.Get(seqKey, nil); err == nil {
		fmt.Sscanf(string(data), "%d", &seq)
	} else if err != leveldb.ErrNotFound {
		return "", fmt.Errorf("leveldb get: %w", err)
	}
	seq++
	if err := r.db.Put(seqKey, []byte(fmt.Sprintf("%d", seq)), nil); err != nil {
		return "", fmt.Errorf("leveldb put: %w", err)
	}
	return fmt.Sprintf("%016d", seq), nil
}

type levelStore struct {
	name string
	reg  *LevelDBRegistry
}

func (s *levelStore) Name() string {
	return s.name
}

func (s *levelStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.reg.db.Get([]byte("e:"+s.name+":"+key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			CacheMisses.WithLabelValues(s.name).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(s.name).Inc()
	return &entry, nil
}

func (s *levelStore) Put(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte("e:"+s.name+":"+key), data)

	// New keys get a fresh sequence; existing keys keep their position.
	_, err = s.reg.db.Get([]byte("k:"+s.name+":"+key), nil)
	if err == leveldb.ErrNotFound {
		seq, err := s.reg.nextSeq(s.name)
		if err != nil {
			CacheErrors.WithLabelValues("put").Inc()
			return err
		}
		batch.Put([]byte("k:"+s.name+":"+key), []byte(seq))
		batch.Put([]byte("o:"+s.name+":"+seq), []byte(key))
	} else if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("leveldb get: %w", err)
	}

	if err := s.reg.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("leveldb write: %w", err)
	}

	if n, err := s.Len(ctx); err == nil {
		CacheEntries.WithLabelValues(s.name).Set(float64(n))
	}
	return nil
}

func (s *levelStore) Delete(ctx context.Context, key string) error {
	seq, err := s.reg.db.Get([]byte("k:"+s.name+":"+key), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("leveldb get: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte("e:" + s.name + ":" + key))
	batch.Delete([]byte("k:" + s.name + ":" + key))
	batch.Delete([]byte("o:" + s.name + ":" + string(seq)))

	if err := s.reg.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("leveldb write: %w", err)
	}

	if n, err := s.Len(ctx); err == nil {
		CacheEntries.WithLabelValues(s.name).Set(float64(n))
	}
	return nil
}

func (s *levelStore) Keys(ctx context.Context) ([]string, error) {
	it := s.reg.db.NewIterator(util.BytesPrefix([]byte("o:"+s.name+":")), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Value()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("leveldb iterate: %w", err)
	}
	return keys, nil
}

func (s *levelStore) Len(ctx context.Context) (int, error) {
	it := s.reg.db.NewIterator(util.BytesPrefix([]byte("k:"+s.name+":")), nil)
	defer it.Release()

	n := 0
	for it.Next() {
		n++
	}
	if err := it.Error(); err != nil {
		return 0, fmt.Errorf("leveldb iterate: %w", err)
	}
	return n, nil
}
