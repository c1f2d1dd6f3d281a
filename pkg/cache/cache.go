package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

type item struct {
	v   any
	exp int64 // unix seconds; 0 = no expiry
}

// Cache is a small in-memory TTL cache safe for concurrent use. The scan
// controller uses it to avoid hitting the vehicles table on every QR
// resolution of the same token.
type Cache struct {
	mu    sync.RWMutex
	items map[string]item
}

var (
	defaultCache *Cache
	once         sync.Once
)

// Default returns a process-wide cache instance.
func Default() *Cache {
	once.Do(func() {
		defaultCache = &Cache{items: make(map[string]item)}
		go defaultCache.janitor(60 * time.Second)
	})
	return defaultCache
}

// Get returns the value and whether it exists and is not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	now := time.Now().Unix()
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if it.exp != 0 && it.exp < now {
		// lazy delete
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	return it.v, true
}

// Set stores a value with TTL. ttl<=0 means no expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).Unix()
	}
	c.mu.Lock()
	c.items[key] = item{v: v, exp: exp}
	c.mu.Unlock()
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// janitor periodically drops expired items.
func (c *Cache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for range t.C {
		now := time.Now().Unix()
		c.mu.Lock()
		for k, it := range c.items {
			if it.exp != 0 && it.exp < now {
				delete(c.items, k)
			}
		}
		c.mu.Unlock()
	}
}

// KeyFromStrings creates a compact stable key from parts.
func KeyFromStrings(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(p))
	}
	return string(h.Sum(nil))
}
