package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Sharded is a concurrent keyed cache split across fixed shards so writers
// for different symbols rarely contend.
type Sharded[V any] struct {
	shards [numShards]*shard[V]
	now    func() time.Time
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

// NewSharded creates an empty cache.
func NewSharded[V any]() *Sharded[V] {
	c := &Sharded[V]{now: time.Now}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return c
}

func (c *Sharded[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores value under key.
func (c *Sharded[V]) Set(key string, value V) {
	s := c.getShard(key)
	s.mu.Lock()
	s.items[key] = entry[V]{value: value, updatedAt: c.now()}
	s.mu.Unlock()
}

// Get retrieves the value stored under key.
func (c *Sharded[V]) Get(key string) (V, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	return e.value, ok
}

// GetWithAge retrieves a value and how long ago it was written.
func (c *Sharded[V]) GetWithAge(key string) (V, time.Duration, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, 0, false
	}
	return e.value, c.now().Sub(e.updatedAt), true
}

// Delete removes key.
func (c *Sharded[V]) Delete(key string) {
	s := c.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns total items across all shards.
func (c *Sharded[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge.
func (c *Sharded[V]) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := c.now().Add(-maxAge)

	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Keys returns every cached key, unordered.
func (c *Sharded[V]) Keys() []string {
	var keys []string
	for _, s := range c.shards {
		s.mu.RLock()
		for key := range s.items {
			keys = append(keys, key)
		}
		s.mu.RUnlock()
	}
	return keys
}

// Stats provides cache statistics.
type Stats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
	OldestAge   time.Duration  `json:"oldest_age"`
}

// Stats returns cache statistics.
func (c *Sharded[V]) Stats() Stats {
	stats := Stats{}
	var oldest time.Time

	for i, s := range c.shards {
		s.mu.RLock()
		stats.ShardCounts[i] = len(s.items)
		stats.TotalItems += len(s.items)
		for _, e := range s.items {
			if oldest.IsZero() || e.updatedAt.Before(oldest) {
				oldest = e.updatedAt
			}
		}
		s.mu.RUnlock()
	}

	if !oldest.IsZero() {
		stats.OldestAge = c.now().Sub(oldest)
	}
	return stats
}
