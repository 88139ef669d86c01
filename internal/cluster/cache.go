package cluster

import (
	"sync"
	"time"
)

// cacheEntry is a cached infra id lookup. An empty InfraID records a miss.
type cacheEntry struct {
	InfraID   string
	ExpiresAt time.Time
}

// Cache memoizes name→infra id lookups per region for the length of a run.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		maxSize: 4096,
		now:     time.Now,
	}
}

func cacheKey(region, name string) string {
	return region + "/" + name
}

// Get returns the cached infra id and whether the lookup is cached at all.
func (c *Cache) Get(region, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[cacheKey(region, name)]
	if !exists || c.now().After(entry.ExpiresAt) {
		return "", false
	}
	return entry.InfraID, true
}

// Set stores a lookup result, including misses.
func (c *Cache) Set(region, name, infraID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictExpired()
	}
	c.entries[cacheKey(region, name)] = &cacheEntry{
		InfraID:   infraID,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// evictExpired drops expired entries, then a tenth of the rest if still full.
func (c *Cache) evictExpired() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}
	target := c.maxSize / 10
	for key := range c.entries {
		delete(c.entries, key)
		target--
		if target <= 0 {
			break
		}
	}
}

// Size returns the number of cached lookups.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
