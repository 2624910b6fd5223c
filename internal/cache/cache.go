// Package cache implements a bounded, size-aware metadata cache: LRU
// eviction against a configured total-size ceiling, with a staleness check
// against the backing data's last-modified instant.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/LoyaltyPointHQ/lamina/internal/objectstore"
)

// entrySizeOverhead is the fixed per-entry bookkeeping cost counted toward
// the size ceiling, independent of the metadata's own field sizes.
const entrySizeOverhead = 64

type entry struct {
	bucket, key      string
	metadata         objectstore.ObjectMetadata
	dataLastModified time.Time
	size             int64
}

// Cache is a thread-safe, size-bounded LRU cache of object metadata.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List
	index    map[string]*list.Element
}

// New creates a Cache with the given total-size ceiling in bytes.
func New(maxBytes int64) *Cache {
	return &Cache{maxBytes: maxBytes, ll: list.New(), index: make(map[string]*list.Element)}
}

func cacheKey(bucket, key string) string { return bucket + "\x00" + key }

// estimateSize applies a fixed overhead plus UTF-16-style sizing of string
// fields plus per-entry overhead for the user metadata map: each rune
// counted as 2 bytes, or 4 outside the Basic Multilingual Plane (one
// UTF-16 code unit or a surrogate pair), cheap and
// deterministic rather than a deep structural walk.
func estimateSize(m objectstore.ObjectMetadata) int64 {
	sz := int64(entrySizeOverhead)
	sz += utf16Len(m.ContentType)
	sz += utf16Len(m.OwnerID)
	sz += utf16Len(m.OwnerName)
	for k, v := range m.UserMeta {
		sz += utf16Len(k) + utf16Len(v) + 16 // map entry overhead
	}
	return sz
}

func utf16Len(s string) int64 {
	n := int64(0)
	for _, r := range s {
		if r > 0xFFFF {
			n += 4
		} else {
			n += 2
		}
	}
	return n
}

// Get returns the cached metadata for (bucket, key), treating it as a miss
// if currentDataLastModified differs from what was cached at write time.
func (c *Cache) Get(bucket, key string, currentDataLastModified time.Time) (objectstore.ObjectMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[cacheKey(bucket, key)]
	if !ok {
		return objectstore.ObjectMetadata{}, false
	}
	e := el.Value.(*entry)
	if !e.dataLastModified.Equal(currentDataLastModified) {
		c.removeElement(el)
		return objectstore.ObjectMetadata{}, false
	}
	c.ll.MoveToFront(el)
	return e.metadata, true
}

// Put inserts or updates an entry, evicting from the back until the size
// ceiling is satisfied.
func (c *Cache) Put(bucket, key string, m objectstore.ObjectMetadata, dataLastModified time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := estimateSize(m)
	k := cacheKey(bucket, key)
	if el, ok := c.index[k]; ok {
		c.removeElement(el)
	}
	if c.maxBytes > 0 && size > c.maxBytes {
		return // single entry larger than the whole cache: don't cache it
	}
	e := &entry{bucket: bucket, key: key, metadata: m, dataLastModified: dataLastModified, size: size}
	el := c.ll.PushFront(e)
	c.index[k] = el
	c.curBytes += size

	for c.maxBytes > 0 && c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
}

// Invalidate removes any cached entry for (bucket, key).
func (c *Cache) Invalidate(bucket, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[cacheKey(bucket, key)]; ok {
		c.removeElement(el)
	}
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.index, cacheKey(e.bucket, e.key))
	c.curBytes -= e.size
}

// Len returns the number of cached entries, for tests/metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
