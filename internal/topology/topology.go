// Package topology implements the consistent-hash shard ring and the
// health lifecycle of each shard, generalizing the teacher's
// internal/coordinator/shard_registry.go (assignment bookkeeping) and
// internal/coordinator/health_monitor.go (consecutive-failure tracking)
// from per-node health to per-shard health, and replacing the teacher's
// FNV-based single-hash assignment with a proper consistent-hash ring
// with virtual nodes.
package topology

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"stathat.com/c/consistent"

	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// Health is the lifecycle state of a shard.
type Health string

const (
	Healthy    Health = "healthy"
	Degraded   Health = "degraded"
	Failed     Health = "failed"
	Recovering Health = "recovering"
)

// virtualNodesPerShard mirrors spec.md's V≈150.
const virtualNodesPerShard = 150

// ownerCacheSize bounds the owner→shard memoization LRU.
const ownerCacheSize = 100_000

// ShardInfo is the topology's record for one shard, matching spec.md's
// "Shard record" data model.
type ShardInfo struct {
	ShardID          int32
	Health           Health
	ConnectionString string
	Region           string
	Replicas         []int32
	LastHealthCheck  time.Time
	LoadFactor       float64
}

// clone returns a defensive copy so callers can't mutate topology state
// through a returned pointer, matching the teacher's "always return
// copies" discipline.
func (s ShardInfo) clone() ShardInfo {
	out := s
	out.Replicas = append([]int32(nil), s.Replicas...)
	return out
}

// Topology is the authoritative shard map: a consistent-hash ring for
// owner→shard placement, plus health state and replica lists for each
// registered shard. All mutation methods take the write lock only long
// enough to update the small in-memory structures; no I/O is performed
// while holding it.
type Topology struct {
	mu                sync.RWMutex
	ring              *consistent.Consistent
	shards            map[int32]*ShardInfo
	registrationOrder []int32
	replicationFactor int
	ownerCache        *lru.Cache[string, int32]
}

// New constructs an empty Topology. replicationFactor is the number of
// replicas computed for each shard (spec.md §4.2: "the next
// replication_factor distinct shards in registration order").
func New(replicationFactor int) *Topology {
	ring := consistent.New()
	ring.NumberOfReplicas = virtualNodesPerShard
	cache, _ := lru.New[string, int32](ownerCacheSize)
	return &Topology{
		ring:              ring,
		shards:            make(map[int32]*ShardInfo),
		replicationFactor: replicationFactor,
		ownerCache:        cache,
	}
}

// ringKey returns the string member name added to the hash ring. The
// underlying library derives its own virtual-node hashes from this
// member name and its configured NumberOfReplicas (the replica index
// prefixed to the member name); the ring does not hash keys of the form
// "shard_{id}_vnode_{i}".
func ringKey(shardID int32) string {
	return fmt.Sprintf("shard_%d", shardID)
}

func parseRingKey(key string) (int32, error) {
	var id int32
	_, err := fmt.Sscanf(key, "shard_%d", &id)
	return id, err
}

// AddShard registers a new shard, placing it on the hash ring and
// computing its replica set from the other already-registered shards in
// registration order (skipping the new shard itself). Adding a shard
// clears the owner→shard memoization cache, since ring membership
// changed and previously memoized placements may now be stale.
func (t *Topology) AddShard(info ShardInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info.Health == "" {
		info.Health = Healthy
	}
	stored := info.clone()
	t.shards[info.ShardID] = &stored
	t.registrationOrder = append(t.registrationOrder, info.ShardID)
	t.ring.Add(ringKey(info.ShardID))
	t.recomputeReplicasLocked()
	t.ownerCache.Purge()
}

// RemoveShard deregisters a shard entirely: it is removed from the ring,
// from replica sets, and from registration order. Callers are expected
// to have already drained or failed over the shard's data; RemoveShard
// only updates placement bookkeeping.
func (t *Topology) RemoveShard(shardID int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.shards, shardID)
	t.ring.Remove(ringKey(shardID))
	for i, id := range t.registrationOrder {
		if id == shardID {
			t.registrationOrder = append(t.registrationOrder[:i], t.registrationOrder[i+1:]...)
			break
		}
	}
	t.recomputeReplicasLocked()
	t.ownerCache.Purge()
}

// recomputeReplicasLocked assigns each shard's Replicas as the next
// replicationFactor distinct shards in registration order, wrapping
// around and skipping the primary itself, per spec.md §4.2. Caller must
// hold t.mu for writing.
func (t *Topology) recomputeReplicasLocked() {
	n := len(t.registrationOrder)
	if n == 0 {
		return
	}
	for i, shardID := range t.registrationOrder {
		replicas := make([]int32, 0, t.replicationFactor)
		for offset := 1; offset <= n-1 && len(replicas) < t.replicationFactor; offset++ {
			candidate := t.registrationOrder[(i+offset)%n]
			replicas = append(replicas, candidate)
		}
		if s, ok := t.shards[shardID]; ok {
			s.Replicas = replicas
		}
	}
}

// UpdateHealth transitions shardID to health. It only records the new
// state: it does not log the transition or the shard's replica set.
// HealthyShards keeps Degraded shards selectable for load-balanced
// placement and drops Failed and Recovering ones; no layer restricts
// writes addressed directly to a Recovering shard.
func (t *Topology) UpdateHealth(shardID int32, health Health) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.shards[shardID]
	if !ok {
		return taoerr.New("topology.UpdateHealth", taoerr.NotFound, fmt.Errorf("unknown shard %d", shardID))
	}
	s.Health = health
	s.LastHealthCheck = time.Now()
	return nil
}

// ShardForOwner returns the shard that should own a new entity whose
// parent/owner is ownerID, via the consistent-hash ring. Results are
// memoized in a bounded LRU keyed by the owner ID; the memo is cleared on
// every topology mutation (AddShard/RemoveShard).
func (t *Topology) ShardForOwner(ownerID int64) (int32, error) {
	cacheKey := strconv.FormatInt(ownerID, 10)
	if shard, ok := t.ownerCache.Get(cacheKey); ok {
		return shard, nil
	}

	t.mu.RLock()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ownerID))
	member, err := t.ring.Get(string(buf))
	t.mu.RUnlock()
	if err != nil {
		return 0, taoerr.New("topology.ShardForOwner", taoerr.TransientIO, err)
	}

	shardID, err := parseRingKey(member)
	if err != nil {
		return 0, taoerr.New("topology.ShardForOwner", taoerr.Fatal, err)
	}
	t.ownerCache.Add(cacheKey, shardID)
	return shardID, nil
}

// ShardForObject extracts the shard embedded in id's bit layout. This is
// pure and requires no lookup, as specified.
func ShardForObject(id idgen.TaoId) int32 {
	return idgen.ShardOf(id)
}

// ReplicasOf returns the replica shard IDs for shardID, or an error if
// shardID is not registered.
func (t *Topology) ReplicasOf(shardID int32) ([]int32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.shards[shardID]
	if !ok {
		return nil, taoerr.New("topology.ReplicasOf", taoerr.NotFound, fmt.Errorf("unknown shard %d", shardID))
	}
	return append([]int32(nil), s.Replicas...), nil
}

// HealthyShards returns the IDs of all shards whose health is Healthy or
// Degraded — the set the router considers available for placement.
// Failed and Recovering shards are excluded. The order of the returned
// IDs is not defined.
func (t *Topology) HealthyShards() []int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]int32, 0, len(t.shards))
	for id, s := range t.shards {
		if s.Health == Healthy || s.Health == Degraded {
			out = append(out, id)
		}
	}
	return out
}

// Get returns a defensive copy of shardID's record.
func (t *Topology) Get(shardID int32) (ShardInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.shards[shardID]
	if !ok {
		return ShardInfo{}, false
	}
	return s.clone(), true
}

// All returns a defensive copy of every registered shard's record.
func (t *Topology) All() []ShardInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ShardInfo, 0, len(t.shards))
	for _, s := range t.shards {
		out = append(out, s.clone())
	}
	return out
}
