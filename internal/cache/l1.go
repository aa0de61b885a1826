package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// L1 is the in-process cache tier: a bounded LRU keyed by the spec's
// semantic strings, evicting by last-accessed under capacity pressure.
// golang-lru/v2 already evicts least-recently-used on Add when at
// capacity; L1 layers TTL expiry and access-count bookkeeping on top,
// since the library itself is TTL-agnostic.
type L1 struct {
	mu    sync.Mutex
	inner *lru.Cache[string, *Entry]
}

// NewL1 constructs an L1 cache bounded to capacity entries
// (CACHE_CAPACITY).
func NewL1(capacity int) *L1 {
	if capacity <= 0 {
		capacity = 1
	}
	inner, _ := lru.New[string, *Entry](capacity)
	return &L1{inner: inner}
}

// Get returns the entry for key if present and unexpired, updating its
// access bookkeeping. A present-but-expired entry is evicted and treated
// as a miss.
func (c *L1) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	now := time.Now()
	if e.Expired(now) {
		c.inner.Remove(key)
		return nil, false
	}
	e.touch(now)
	return e, true
}

// Put inserts or overwrites key's entry.
func (c *L1) Put(key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, e)
}

// InvalidateExact removes exactly key.
func (c *L1) InvalidateExact(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// InvalidatePattern removes every key with the given prefix. L1 has no
// prefix index, so this is a linear scan of its current key set — bounded
// by CACHE_CAPACITY and acceptable given invalidation is off the hot
// read path.
func (c *L1) InvalidatePattern(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.inner.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.inner.Remove(key)
		}
	}
}

// CleanupExpired sweeps the LRU for expired entries and evicts them,
// used by a periodic background sweep rather than on every Get.
func (c *L1) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.inner.Keys() {
		e, ok := c.inner.Peek(key)
		if ok && e.Expired(now) {
			c.inner.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries.
func (c *L1) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
