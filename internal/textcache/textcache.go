// Package textcache implements the bounded LRU cache used to avoid
// re-hydrating volume text repeatedly during a hot search loop. It is
// bounded both by entry count (via hashicorp/golang-lru/v2) and by a
// UTF-8 byte budget, promoting an entry on every hit.
package textcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the cache by entry count when no explicit
// limit is configured.
const DefaultMaxEntries = 500

// DefaultMaxBytes bounds the cache by cumulative UTF-8 byte size when no
// explicit limit is configured.
const DefaultMaxBytes = 2 << 20 // 2 MiB

// Cache is an LRU text cache bounded by both entry count and total byte
// size. Eviction by count is delegated to the underlying LRU; eviction by
// byte budget removes least-recently-used entries until the cache is
// back under budget, which may evict more than one entry.
type Cache struct {
	maxBytes    int
	currentSize int
	lru         *lru.Cache[string, string]
}

// New creates a text cache bounded by maxEntries distinct keys and
// maxBytes cumulative UTF-8 bytes. Non-positive values fall back to the
// package defaults.
func New(maxEntries, maxBytes int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	c := &Cache{maxBytes: maxBytes}
	backing, _ := lru.NewWithEvict[string, string](maxEntries, c.onEvict)
	c.lru = backing
	return c
}

func (c *Cache) onEvict(key, value string) {
	c.currentSize -= len(value)
}

// Get returns the cached text for id, promoting it to most-recently-used
// on a hit.
func (c *Cache) Get(id string) (string, bool) {
	return c.lru.Get(id)
}

// Put stores text under id, evicting least-recently-used entries (by
// count first, then by byte budget) until the cache is within bounds.
func (c *Cache) Put(id, text string) {
	if old, ok := c.lru.Peek(id); ok {
		c.currentSize -= len(old)
	}
	c.lru.Add(id, text)
	c.currentSize += len(text)

	for c.currentSize > c.maxBytes && c.lru.Len() > 0 {
		// RemoveOldest triggers onEvict, which already accounts for the
		// removed entry's bytes.
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Remove evicts id if present.
func (c *Cache) Remove(id string) {
	c.lru.Remove(id)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Clear empties the cache.
func (c *Cache) Clear() {
	c.lru.Purge()
	c.currentSize = 0
}
