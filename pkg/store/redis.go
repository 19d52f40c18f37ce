package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis key layout, per store:
//
//	sw:stores                   set of store names
//	sw:store:<name>:entries     hash of request key → JSON entry
//	sw:store:<name>:order       list of request keys, insertion order
const (
	redisStoreSet    = "sw:stores"
	redisEntriesTmpl = "sw:store:%s:entries"
	redisOrderTmpl   = "sw:store:%s:order"
)

// RedisRegistry persists stores in Redis. The registry does not own the
// client; the caller is responsible for closing it.
type RedisRegistry struct {
	redis *redis.Client
}

// NewRedisRegistry creates a Redis-backed registry.
func NewRedisRegistry(redisClient *redis.Client) *RedisRegistry {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisRegistry{redis: redisClient}
}

// Open returns the named store, registering the name on first use.
func (r *RedisRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := r.redis.SAdd(ctx, redisStoreSet, name).Err(); err != nil {
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	return &redisStore{name: name, redis: r.redis}, nil
}

// Names lists all registered store names.
func (r *RedisRegistry) Names(ctx context.Context) ([]string, error) {
	names, err := r.redis.SMembers(ctx, redisStoreSet).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return names, nil
}

// Destroy removes a store, its entries and its ordering.
func (r *RedisRegistry) Destroy(ctx context.Context, name string) error {
	entriesKey := fmt.Sprintf(redisEntriesTmpl, name)
	orderKey := fmt.Sprintf(redisOrderTmpl, name)

	if err := r.redis.Del(ctx, entriesKey, orderKey).Err(); err != nil {
		CacheErrors.WithLabelValues("destroy").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	if err := r.redis.SRem(ctx, redisStoreSet, name).Err(); err != nil {
		CacheErrors.WithLabelValues("destroy").Inc()
		return fmt.Errorf("redis srem: %w", err)
	}
	CacheEntries.WithLabelValues(name).Set(0)
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *RedisRegistry) Close() error {
	return nil
}

type redisStore struct {
	name  string
	redis *redis.Client
}

func (s *redisStore) Name() string {
	return s.name
}

func (s *redisStore) entriesKey() string {
	return fmt.Sprintf(redisEntriesTmpl, s.name)
}

func (s *redisStore) orderKey() string {
	return fmt.Sprintf(redisOrderTmpl, s.name)
}

func (s *redisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.HGet(ctx, s.entriesKey(), key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(s.name).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(s.name).Inc()
	return &entry, nil
}

func (s *redisStore) Put(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Existing keys keep their position in the order list.
	exists, err := s.redis.HExists(ctx, s.entriesKey(), key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis hexists: %w", err)
	}

	if err := s.redis.HSet(ctx, s.entriesKey(), key, data).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}
	if !exists {
		if err := s.redis.RPush(ctx, s.orderKey(), key).Err(); err != nil {
			CacheErrors.WithLabelValues("put").Inc()
			return fmt.Errorf("redis rpush: %w", err)
		}
	}

	if n, err := s.redis.HLen(ctx, s.entriesKey()).Result(); err == nil {
		CacheEntries.WithLabelValues(s.name).Set(float64(n))
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.HDel(ctx, s.entriesKey(), key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis hdel: %w", err)
	}
	if err := s.redis.LRem(ctx, s.orderKey(), 0, key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis lrem: %w", err)
	}

	if n, err := s.redis.HLen(ctx, s.entriesKey()).Result(); err == nil {
		CacheEntries.WithLabelValues(s.name).Set(float64(n))
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.redis.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return keys, nil
}

func (s *redisStore) Len(ctx context.Context) (int, error) {
	n, err := s.redis.HLen(ctx, s.entriesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	return int(n), nil
}
