package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Memo remembers the results of a pure function keyed by string, bounded
// by LRU eviction. Concurrent misses on the same key share one computation.
// It is safe for concurrent use.
type Memo[V any] struct {
	cache   *lru.Cache[string, V]
	group   singleflight.Group
	maxSize int

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
	evictions atomic.Int64
}

// NewMemo creates a memo holding at most size entries.
func NewMemo[V any](size int) (*Memo[V], error) {
	m := &Memo[V]{maxSize: size}
	c, err := lru.NewWithEvict[string, V](size, func(string, V) {
		m.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	m.cache = c
	return m, nil
}

// Get returns the remembered value for key, computing it with fn on a miss.
func (m *Memo[V]) Get(key string, fn func() V) V {
	if v, ok := m.cache.Get(key); ok {
		m.hits.Add(1)
		return v
	}
	m.misses.Add(1)

	v, _, shared := m.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := m.cache.Peek(key); ok {
			return v, nil
		}
		v := fn()
		m.cache.Add(key, v)
		return v, nil
	})
	if shared {
		m.shared.Add(1)
	}
	return v.(V)
}

// Len returns the number of remembered entries.
func (m *Memo[V]) Len() int {
	return m.cache.Len()
}

// Purge forgets every entry; statistics are kept.
func (m *Memo[V]) Purge() {
	m.cache.Purge()
}

// Stats returns a snapshot of the memo statistics.
func (m *Memo[V]) Stats() Stats {
	stats := Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Shared:    m.shared.Load(),
		Size:      m.cache.Len(),
		MaxSize:   m.maxSize,
		Evictions: m.evictions.Load(),
	}
	stats.CalculateHitRate()
	return stats
}
