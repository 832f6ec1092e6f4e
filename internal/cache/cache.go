// Package cache provides a bounded LRU cache with per-entry TTL.
//
// The central type is [Cache], a generic map + intrusive-list LRU with O(1)
// get/put. It fronts the persistent store for hot agent reads: the store's
// miss path populates it, and every write-through invalidates the stale
// entry. Expired entries are evicted lazily on access.
//
// All methods are safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Default sizing. Capacity bounds resident entries; TTL bounds staleness for
// entries written by other processes or restored snapshots.
const (
	DefaultCapacity = 5000
	DefaultTTL      = 300 * time.Second
)

// Config holds tuning knobs for a [Cache].
type Config struct {
	// Capacity is the maximum number of resident entries before the least
	// recently used entry is evicted. Default: 5000.
	Capacity int

	// TTL is how long an entry stays valid after its last Put. Default: 300s.
	TTL time.Duration

	// Now overrides the time source. Default: time.Now.
	Now func() time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// entry is one resident key/value pair plus its expiry deadline.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is a bounded LRU cache with per-entry TTL.
//
// Reads move the entry to the front of the recency list, so lookups take the
// same lock as updates; both paths stay O(1).
type Cache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	items  map[K]*list.Element
	order  *list.List // front = most recently used
	hits   uint64
	misses uint64
}

// New creates a [Cache] with the supplied configuration. Zero-value config
// fields are replaced with defaults.
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache[K, V]{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		items:    make(map[K]*list.Element, cfg.Capacity),
		order:    list.New(),
	}
}

// Get returns the cached value for key. Expired entries are removed and
// reported as misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := el.Value.(*entry[K, V])
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Put inserts or replaces the value for key, resetting its TTL. When the
// cache is full the least recently used entry is evicted.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
	el := c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expires})
	c.items[key] = el
}

// Invalidate removes the entry for key, if present. Called on every
// write-through so readers never see a stale copy.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops every entry. Hit/miss counters are preserved.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of resident entries, including any not yet
// lazily expired.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache's size and hit/miss counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:     c.order.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// removeLocked unlinks el from both the map and the recency list.
// Caller holds c.mu.
func (c *Cache[K, V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	delete(c.items, ent.key)
	c.order.Remove(el)
}
