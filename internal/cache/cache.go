// Package cache memoizes per-request values with explicit eviction.
package cache

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultShards = 32

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[int64]entry[V]
	// gens is bumped when a key is evicted while fills for it are running.
	// Both maps only hold keys with running fills.
	gens     map[int64]uint64
	inflight map[int64]int
}

// Cache maps request ids to computed values. Concurrent misses on the same key
// share one computation. A computation that started before an Evict of its key
// never stores its result.
type Cache[V any] struct {
	shards []*shard[V]
	group  singleflight.Group
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	shards int
	ttl    time.Duration
	now    func() time.Time
}

// WithTTL expires entries after ttl. Zero keeps entries until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithShards sets the number of lock shards.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{shards: defaultShards, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		shards: make([]*shard[V], o.shards),
		ttl:    o.ttl,
		now:    o.now,
	}
	for i := range c.shards {
		c.shards[i] = &shard[V]{
			entries:  make(map[int64]entry[V]),
			gens:     make(map[int64]uint64),
			inflight: make(map[int64]int),
		}
	}
	return c
}

func (c *Cache[V]) shardFor(key int64) *shard[V] {
	idx := uint64(key) % uint64(len(c.shards))
	return c.shards[idx]
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key int64) (V, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

type flightResult[V any] struct {
	value V
}

// GetOrCompute returns the cached value for key, or runs compute on a miss.
// The result is stored only when compute reports it as cacheable. The second
// return value reports whether the value came from the cache.
func (c *Cache[V]) GetOrCompute(key int64, compute func() (V, bool)) (V, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}

	s := c.shardFor(key)
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && !c.expired(e) {
		s.mu.Unlock()
		return e.value, true
	}
	gen := s.gens[key]
	s.inflight[key]++
	s.mu.Unlock()
	defer c.release(s, key)

	flightKey := strconv.FormatInt(key, 10) + ":" + strconv.FormatUint(gen, 10)
	res, _, _ := c.group.Do(flightKey, func() (any, error) {
		value, cacheable := compute()
		if cacheable {
			c.store(s, key, gen, value)
		}
		return flightResult[V]{value: value}, nil
	})
	return res.(flightResult[V]).value, false
}

// release drops the fill bookkeeping for key once no fill is running.
func (c *Cache[V]) release(s *shard[V], key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key]--; s.inflight[key] > 0 {
		return
	}
	delete(s.inflight, key)
	delete(s.gens, key)
}

func (c *Cache[V]) store(s *shard[V], key int64, gen uint64, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key] != gen {
		return
	}
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	s.entries[key] = e
}

// Evict removes key. In-flight computations for key will not be stored.
func (c *Cache[V]) Evict(key int64) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	if s.inflight[key] > 0 {
		s.gens[key]++
	}
	s.mu.Unlock()
}

// Purge removes every entry. Computations running at the time of the call
// will not be stored.
func (c *Cache[V]) Purge() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[int64]entry[V])
		for key := range s.inflight {
			s.gens[key]++
		}
		s.mu.Unlock()
	}
}

// Len returns the number of stored entries, including expired ones not yet
// overwritten.
func (c *Cache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
