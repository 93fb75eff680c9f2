package spatial

// cache.go implements the process-wide spatial index cache.
//
// The cache is bounded by entry count and by age. Expired entries are removed
// lazily when read. When a write finds the cache full, the oldest share of
// entries (by insertion time) is dropped in one pass. Reads never refresh an
// entry, so this is not an LRU.

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultCacheSize is the default maximum number of cached keys.
	DefaultCacheSize = 30000

	// DefaultCacheTTL is how long an entry stays valid after it is written.
	DefaultCacheTTL = 8 * time.Minute

	// EvictFraction is the share of entries dropped when the cache is full.
	EvictFraction = 0.3
)

// Key identifies a spatial entity lookup.
type Key struct {
	GeoCode    string
	AdminLevel string
	Source     string
}

// Scope is the (source, admin level) pair shared by every key in a job.
type Scope struct {
	Source     string `json:"source" yaml:"source"`
	AdminLevel string `json:"adminLevel" yaml:"admin_level"`
}

// Key builds the lookup key for code within s.
func (s Scope) Key(code string) Key {
	return Key{GeoCode: code, AdminLevel: s.AdminLevel, Source: s.Source}
}

type cacheEntry struct {
	id         int64
	insertedAt time.Time
	seq        uint64
}

// Cache is a bounded, TTL-based map from Key to spatial entity id.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]cacheEntry
	max     int
	ttl     time.Duration
	now     func() time.Time
	seq     uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache holding at most maxEntries keys for ttl each.
// Non-positive values fall back to the defaults.
func NewCache(maxEntries int, ttl time.Duration, opts ...CacheOption) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		entries: make(map[Key]cacheEntry),
		max:     maxEntries,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached id for key. An expired entry is removed and
// reported as absent.
func (c *Cache) Get(key Key) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		return 0, false
	}
	return e.id, true
}

// Set stores id under key. If the cache is full and key is new, the oldest
// entries are evicted first.
func (c *Cache) Set(key Key, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.seq++
	c.entries[key] = cacheEntry{id: id, insertedAt: c.now(), seq: c.seq}
}

// evictOldest drops EvictFraction of the entries, at least one.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	type aged struct {
		key Key
		at  time.Time
		seq uint64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.insertedAt, seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Equal(all[j].at) {
			return all[i].seq < all[j].seq
		}
		return all[i].at.Before(all[j].at)
	})

	n := int(float64(len(all)) * EvictFraction)
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
