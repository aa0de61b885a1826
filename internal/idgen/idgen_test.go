package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextID_Monotonic(t *testing.T) {
	g := New(42)
	prev, err := g.NextID()
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		assert.Greater(t, int64(id), int64(prev))
		prev = id
	}
}

func TestShardOf_RoundTrips(t *testing.T) {
	for _, shard := range []int32{0, 1, 42, 1023} {
		g := New(shard)
		id, err := g.NextID()
		require.NoError(t, err)
		assert.Equal(t, shard, ShardOf(id))
	}
}

func TestNextID_SequenceOverflowAdvancesMillisecond(t *testing.T) {
	fixedMs := int64(1_700_000_000_000)
	ticks := 0
	restore := nowFunc
	defer func() { nowFunc = restore }()
	nowFunc = func() int64 {
		// first call establishes lastMs; subsequent maxSeq+1 calls stay
		// on the same millisecond to force overflow, then the spin loop
		// advances it.
		ticks++
		if ticks <= maxSeq+2 {
			return fixedMs
		}
		return fixedMs + 1
	}

	g := New(7)
	seen := make(map[TaoId]bool)
	for i := 0; i < maxSeq+5; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id generated")
		seen[id] = true
	}
}

func TestNextID_ClockRegressionIsFatal(t *testing.T) {
	restore := nowFunc
	defer func() { nowFunc = restore }()

	call := 0
	nowFunc = func() int64 {
		call++
		if call == 1 {
			return 1_700_000_000_100
		}
		return 1_700_000_000_000 // regressed
	}

	g := New(1)
	_, err := g.NextID()
	require.NoError(t, err)
	_, err = g.NextID()
	require.Error(t, err)
}

func TestNew_PanicsOnOutOfRangeShard(t *testing.T) {
	assert.Panics(t, func() { New(-1) })
	assert.Panics(t, func() { New(1024) })
}
