// Package cache provides the process-wide TTL cache used by every provider
// adapter. Entries carry their insertion time; freshness is decided at read
// time against the caller's max age, so the same entry can be fresh for one
// caller and stale for another.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value      interface{}
	insertedAt time.Time
}

// Cache is a keyed in-memory store. Storage is unbounded; the process
// lifetime caps it. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewWithClock creates a cache with an injected time source, for tests.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// SetClock overrides the time source, for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Key builds a cache key from domain-scoped parts: Key("fmp", "profile",
// "AAPL") -> "fmp:profile:AAPL". Keys double as invalidation scopes, so all
// producers go through this constructor rather than ad-hoc concatenation.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Get returns the stored value iff it exists and is younger than maxAge.
func (c *Cache) Get(key string, maxAge time.Duration) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= maxAge {
		return nil, false
	}
	return e.value, true
}

// Set unconditionally installs (value, now). Last writer wins.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, insertedAt: c.now()}
	c.mu.Unlock()
}

// Has reports whether Get would return a value, without returning it.
func (c *Cache) Has(key string, maxAge time.Duration) bool {
	_, ok := c.Get(key, maxAge)
	return ok
}

// Delete removes a single key, reporting whether it existed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return ok
}

// Invalidate removes every key containing the given substring and returns the
// number of entries removed. Used when an upstream reports a hard
// inconsistency; expected to be rare.
func (c *Cache) Invalidate(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, substr) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns the entry count and the full key list, for health endpoints.
func (c *Cache) Stats() (int, []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return len(c.entries), keys
}
