package cache

import (
	"strconv"
	"time"
)

// Cache is the two-tier cache: L1 is always present; L2 is optional.
// Writes go through Put, which always updates L1 and, when
// writeThrough is enabled and an L2 is configured, also updates L2.
// Reads consult L1 first; on an L1 miss with L2 configured, L2 is
// consulted and, on a hit, used to repopulate L1.
type Cache struct {
	l1           *L1
	l2           L2Backend
	writeThrough bool
	l2TTL        time.Duration
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithL2 attaches an L2Backend with its own (typically longer) default
// TTL and enables write-through propagation.
func WithL2(backend L2Backend, ttl time.Duration, writeThrough bool) Option {
	return func(c *Cache) {
		c.l2 = backend
		c.l2TTL = ttl
		c.writeThrough = writeThrough
	}
}

// New constructs a Cache with the given L1 capacity and options.
func New(l1Capacity int, opts ...Option) *Cache {
	c := &Cache{l1: NewL1(l1Capacity)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the raw bytes stored for key, or (nil, false) on a miss in
// both tiers.
func (c *Cache) Get(key string) ([]byte, bool) {
	if e, ok := c.l1.Get(key); ok {
		return e.Bytes, true
	}
	if c.l2 == nil {
		return nil, false
	}
	e, ok, err := c.l2.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	if e.Expired(time.Now()) {
		_ = c.l2.Delete(key)
		return nil, false
	}
	c.l1.Put(key, e)
	return e.Bytes, true
}

// Put stores bytes under key with ttl in L1, and in L2 too when
// write-through is enabled.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	now := time.Now()
	e := &Entry{Bytes: value, InsertedAt: now, TTL: ttl, Version: 1, LastAccessed: now}
	c.l1.Put(key, e)

	if c.writeThrough && c.l2 != nil {
		l2TTL := c.l2TTL
		if l2TTL == 0 {
			l2TTL = ttl
		}
		l2e := &Entry{Bytes: value, InsertedAt: now, TTL: l2TTL, Version: 1, LastAccessed: now}
		_ = c.l2.Put(key, l2e)
	}
}

// InvalidateExact removes key from both tiers.
func (c *Cache) InvalidateExact(key string) {
	c.l1.InvalidateExact(key)
	if c.l2 != nil {
		_ = c.l2.Delete(key)
	}
}

// InvalidatePattern removes every key with the given prefix from L1 (via
// linear scan) and from L2 (via its own prefix-capable backend, e.g.
// badger's iterator).
func (c *Cache) InvalidatePattern(prefix string) {
	c.l1.InvalidatePattern(prefix)
	if c.l2 != nil {
		_ = c.l2.DeletePrefix(prefix)
	}
}

// InvalidateObject invalidates exactly the invalidation set spec.md §4.4
// names for a mutation touching id: its object key and every association
// list rooted at id.
func (c *Cache) InvalidateObject(id int64) {
	c.InvalidateExact(keyForID(id))
	c.InvalidatePattern(patternForID(id))
}

func keyForID(id int64) string     { return ObjectKeyInt64(id) }
func patternForID(id int64) string { return AssocListPatternInt64(id) }

// ObjectKeyInt64 / AssocListPatternInt64 mirror ObjectKey/AssocListPattern
// for callers that only have the raw int64 form of a TaoId (decorators
// operate across both id1 and id2, which may come from different
// generic sources).
func ObjectKeyInt64(id int64) string        { return "obj:" + strconv.FormatInt(id, 10) }
func AssocListPatternInt64(id int64) string { return "assoc:" + strconv.FormatInt(id, 10) + ":" }

// CleanupExpired sweeps L1 for expired entries. L2 backends expire
// lazily on Get (badger additionally expires via its own TTL GC).
func (c *Cache) CleanupExpired() int {
	return c.l1.CleanupExpired()
}

// Close releases the L2 backend, if any.
func (c *Cache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
