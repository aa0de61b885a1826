package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1_GetPutRoundTrip(t *testing.T) {
	c := New(10)
	c.Put("obj:1", []byte("hello"), time.Minute)

	v, ok := c.Get("obj:1")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
}

func TestL1_ExpiredEntryIsMiss(t *testing.T) {
	c := New(10)
	c.Put("obj:1", []byte("hello"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("obj:1")
	assert.False(t, ok)
}

func TestL1_EvictsLeastRecentlyAccessed(t *testing.T) {
	l1 := NewL1(2)
	l1.Put("a", &Entry{Bytes: []byte("a"), InsertedAt: time.Now()})
	l1.Put("b", &Entry{Bytes: []byte("b"), InsertedAt: time.Now()})
	// touch "a" so "b" becomes the least-recently-used entry.
	_, _ = l1.Get("a")
	l1.Put("c", &Entry{Bytes: []byte("c"), InsertedAt: time.Now()})

	_, okB := l1.Get("b")
	_, okA := l1.Get("a")
	_, okC := l1.Get("c")
	assert.False(t, okB)
	assert.True(t, okA)
	assert.True(t, okC)
}

func TestInvalidatePattern_RemovesAssocListKeys(t *testing.T) {
	c := New(10)
	c.Put(AssocListKey(1, "friend"), []byte("x"), time.Minute)
	c.Put(AssocListKey(1, "follower"), []byte("y"), time.Minute)
	c.Put(ObjectKey(1), []byte("z"), time.Minute)

	c.InvalidateObject(1)

	_, ok1 := c.Get(AssocListKey(1, "friend"))
	_, ok2 := c.Get(AssocListKey(1, "follower"))
	_, ok3 := c.Get(ObjectKey(1))
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.False(t, ok3)
}

func TestWriteThrough_PopulatesL1OnL2Hit(t *testing.T) {
	l2 := NewMemoryL2()
	c := New(10, WithL2(l2, time.Hour, true))
	c.Put("obj:5", []byte("persisted"), time.Minute)

	// Simulate an L1 eviction/restart by constructing a fresh cache
	// sharing the same L2 backend.
	fresh := New(10, WithL2(l2, time.Hour, true))
	v, ok := fresh.Get("obj:5")
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), v)
}

func TestCleanupExpired_SweepsStaleEntries(t *testing.T) {
	c := New(10)
	c.Put("obj:1", []byte("a"), time.Millisecond)
	c.Put("obj:2", []byte("b"), time.Hour)
	time.Sleep(5 * time.Millisecond)

	removed := c.CleanupExpired()
	assert.Equal(t, 1, removed)
}
