package cache

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"github.com/alexhholmes/leafdb/internal/base"
)

const (
	MinCacheSize = 16 // Minimum: hold a root-to-leaf path plus siblings
)

// Cache is an LRU of raw page images keyed by page id. Cached buffers are
// shared with callers and must be treated as read-only.
type Cache struct {
	lru *freelru.SyncedLRU[base.PageID, []byte]

	// Stats
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a page cache holding up to size pages. A size of zero disables
// caching and returns a nil *Cache, which is safe to use.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	size = max(size, MinCacheSize)

	lru, err := freelru.NewSynced[base.PageID, []byte](uint32(size), hashPageID)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: lru}, nil
}

func hashPageID(id base.PageID) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

// Get returns the cached image of a page.
func (c *Cache) Get(id base.PageID) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	buf, ok := c.lru.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return buf, true
}

// Put stores buf as the image of page id, replacing any previous entry.
func (c *Cache) Put(id base.PageID, buf []byte) {
	if c == nil {
		return
	}
	if c.lru.Add(id, buf) {
		c.evictions.Add(1)
	}
}

// Invalidate drops page id from the cache.
func (c *Cache) Invalidate(id base.PageID) {
	if c == nil {
		return
	}
	c.lru.Remove(id)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Size returns current number of cached entries
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// ClearStats resets the cache's positive incrementing statistics
func (c *Cache) ClearStats() {
	if c == nil {
		return
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}
