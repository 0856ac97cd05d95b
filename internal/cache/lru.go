package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LRUCache is a thread-safe LRU cache for media bytes, bounded by both
// entry count and total size.
type LRUCache struct {
	maxSize int64 // max size in bytes

	mu    sync.Mutex
	size  int64
	items *lru.Cache[string, []byte]

	loads  singleflight.Group
	hits   uint64
	misses uint64
}

// NewLRUCache creates a new LRU cache with the specified capacity and max size in bytes
func NewLRUCache(capacity int, maxSizeBytes int64) (*LRUCache, error) {
	c := &LRUCache{maxSize: maxSizeBytes}

	items, err := lru.NewWithEvict(capacity, func(_ string, data []byte) {
		// Runs under c.mu: every mutation of items happens with it held.
		c.size -= int64(len(data))
	})
	if err != nil {
		return nil, err
	}
	c.items = items
	return c, nil
}

// Get retrieves an item from the cache
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.items.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set adds or updates an item in the cache
func (c *LRUCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dataSize := int64(len(data))

	// If single item is larger than max size, don't cache it
	if dataSize > c.maxSize {
		return
	}

	c.items.Remove(key)
	for c.size+dataSize > c.maxSize && c.items.Len() > 0 {
		c.items.RemoveOldest()
	}

	c.items.Add(key, data)
	c.size += dataSize
}

// GetOrLoad returns the cached bytes for key, calling load on a miss.
// Concurrent misses for the same key share one load.
func (c *LRUCache) GetOrLoad(key string, load func() ([]byte, error)) ([]byte, bool, error) {
	if data, ok := c.Get(key); ok {
		return data, true, nil
	}

	v, err, _ := c.loads.Do(key, func() (any, error) {
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Delete removes an item from the cache
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
}

// Clear removes all items from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
}

// Len returns the number of items in the cache
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Size returns the current size in bytes
func (c *LRUCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns hit and miss counts.
func (c *LRUCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
