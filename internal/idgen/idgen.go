// Package idgen produces the monotonic, shard-embedding 64-bit identifiers
// that let any object ID be routed to its owning shard without a lookup.
//
// # Bit layout
//
//	bit 63 ......... 22 | 21 .. 12 | 11 .. 0
//	      timestamp ms    shard_id   sequence
//
// The sign bit is always 0 (timestamps in milliseconds since epoch do not
// overflow 41 bits for the foreseeable lifetime of this system), shard_id
// occupies 10 bits (up to 1024 shards), and sequence occupies 12 bits
// (4096 IDs per shard per millisecond before the generator must wait for
// the clock to advance).
package idgen

import (
	"sync"
	"time"

	"github.com/dreamware/taograph/internal/taoerr"
)

const (
	shardBits    = 10
	seqBits      = 12
	shardShift   = seqBits
	timeShift    = seqBits + shardBits
	maxShardID   = (1 << shardBits) - 1
	maxSeq       = (1 << seqBits) - 1
	shardIDMask  = int64(maxShardID) << shardShift
)

// TaoId is the 64-bit identifier type used for every object and as the
// id1/id2 of every association.
type TaoId int64

// nowFunc is overridable in tests to simulate clock regression without
// sleeping real wall-clock milliseconds.
var nowFunc = func() int64 { return time.Now().UnixMilli() }

// Generator mints TaoIds for exactly one shard. A Generator must not be
// shared across shards; if it is shared across goroutines for the same
// shard, its internal mutex serializes access to (lastMs, seq).
type Generator struct {
	mu      sync.Mutex
	shardID int32
	lastMs  int64
	seq     int32
}

// New constructs a Generator bound to shardID. shardID must fit in 10
// bits (0..1023); New panics otherwise since this is a programmer error
// fixed at shard-topology construction time, never a runtime condition.
func New(shardID int32) *Generator {
	if shardID < 0 || shardID > maxShardID {
		panic("idgen: shard id out of range")
	}
	return &Generator{shardID: shardID}
}

// ShardID returns the shard this generator is bound to.
func (g *Generator) ShardID() int32 { return g.shardID }

// NextID returns a new, strictly monotonic (per-generator) TaoId. It spin
// waits across millisecond boundaries when the 4096-wide sequence space
// for the current millisecond is exhausted. A regression in the system
// clock (now_ms < last_ms) is reported as ErrClockRegression: the design
// treats this as fatal to ID uniqueness and expects the caller to crash
// rather than recover, so NextID returns the error instead of blocking
// forever or silently reusing a sequence.
func (g *Generator) NextID() (TaoId, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := nowFunc()
	if now < g.lastMs {
		return 0, taoerr.New("idgen.NextID", taoerr.Fatal, taoerr.ErrClockRegression)
	}

	if now == g.lastMs {
		g.seq++
		if g.seq > maxSeq {
			// Sequence space exhausted for this millisecond: spin until
			// the clock ticks forward, then reset.
			for now <= g.lastMs {
				now = nowFunc()
			}
			g.seq = 0
		}
	} else {
		g.seq = 0
	}
	g.lastMs = now

	id := (now << timeShift) | (int64(g.shardID) << shardShift) | int64(g.seq)
	return TaoId(id), nil
}

// ShardOf extracts the shard ID embedded in id without any lookup.
func ShardOf(id TaoId) int32 {
	return int32((int64(id) & shardIDMask) >> shardShift)
}

// TimestampOf extracts the millisecond timestamp embedded in id.
func TimestampOf(id TaoId) time.Time {
	ms := int64(id) >> timeShift
	return time.UnixMilli(ms)
}

// SequenceOf extracts the per-millisecond sequence embedded in id, mostly
// useful for tests asserting monotonicity within a millisecond.
func SequenceOf(id TaoId) int32 {
	return int32(int64(id) & int64(maxSeq))
}
