// Package policy bounds governed cache stores by entry count.
//
// Eviction is count-based only: when a store exceeds its MaxEntries, the
// oldest entries (earliest inserted, still present) are deleted until exactly
// MaxEntries remain. MaxAge is carried as configuration but is never checked
// against entry timestamps; entries expire by displacement, not by time.
// The dynamic page store is not governed at all and can grow without bound.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/eduportal/offline-worker/pkg/store"
)

var evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "worker_evictions_total",
	Help: "Total number of entries evicted by store",
}, []string{"store"})

// Policy is the per-store eviction configuration.
type Policy struct {
	// MaxEntries is the entry count the store is trimmed down to.
	MaxEntries int `yaml:"max_entries"`

	// MaxAge is informational only; no time-based expiry is performed.
	MaxAge time.Duration `yaml:"max_age"`
}

// UnmarshalYAML decodes a policy with max_age given as a duration string
// (e.g. "5m", "24h").
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxEntries int    `yaml:"max_entries"`
		MaxAge     string `yaml:"max_age"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.MaxEntries = raw.MaxEntries
	if raw.MaxAge != "" {
		d, err := time.ParseDuration(raw.MaxAge)
		if err != nil {
			return fmt.Errorf("max_age: %w", err)
		}
		p.MaxAge = d
	}
	return nil
}

// Engine trims governed stores down to their policy bounds.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates an eviction engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Trim deletes the oldest entries of s until at most p.MaxEntries remain.
// Deletions are issued concurrently and all are awaited before returning.
// Returns the number of entries deleted.
func (e *Engine) Trim(ctx context.Context, s store.Store, p Policy) (int, error) {
	if p.MaxEntries <= 0 {
		return 0, nil
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) <= p.MaxEntries {
		return 0, nil
	}

	excess := keys[:len(keys)-p.MaxEntries]

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		lastErr error
	)
	for _, key := range excess {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := s.Delete(ctx, key); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				e.logger.Warn().
					Err(err).
					Str("store", s.Name()).
					Str("key", key).
					Msg("Eviction delete failed")
			}
		}(key)
	}
	wg.Wait()

	evictionsTotal.WithLabelValues(s.Name()).Add(float64(len(excess)))
	e.logger.Debug().
		Str("store", s.Name()).
		Int("evicted", len(excess)).
		Int("max_entries", p.MaxEntries).
		Msg("Trimmed store to policy bound")

	return len(excess), lastErr
}
