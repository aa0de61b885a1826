// Package router implements the query router of spec.md §4.5: it maps
// object/owner IDs to shards and their databases, fans out multi-shard
// reads, and brokers ID generation through the placement shard's
// generator. It is stateless beyond its shard map and holds no lock
// across database I/O: reads take only a brief read lock on that map.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
	"github.com/dreamware/taograph/internal/topology"
)

// Router composes a Topology with one *db.ShardDB and one
// *idgen.Generator per registered shard.
type Router struct {
	topology *topology.Topology

	mu         sync.RWMutex
	databases  map[int32]*db.ShardDB
	generators map[int32]*idgen.Generator

	rrCounter uint64
}

// New constructs an empty Router over top.
func New(top *topology.Topology) *Router {
	return &Router{
		topology:   top,
		databases:  make(map[int32]*db.ShardDB),
		generators: make(map[int32]*idgen.Generator),
	}
}

// AddShard registers a shard's topology record and its database,
// constructing the shard's dedicated ID generator. Exactly one generator
// exists per shard per process, as design note §9 requires.
func (r *Router) AddShard(info topology.ShardInfo, database *db.ShardDB) {
	r.topology.AddShard(info)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.databases[info.ShardID] = database
	r.generators[info.ShardID] = idgen.New(info.ShardID)
}

// Topology exposes the underlying topology for callers (e.g. the
// consistency manager) that need health/replica information the router
// itself does not re-expose.
func (r *Router) Topology() *topology.Topology { return r.topology }

// ShardForObject extracts the shard embedded in id, no lookup required.
func (r *Router) ShardForObject(id idgen.TaoId) int32 {
	return topology.ShardForObject(id)
}

// ShardForOwner resolves the placement shard for ownerID via the
// consistent-hash ring.
func (r *Router) ShardForOwner(ownerID int64) (int32, error) {
	return r.topology.ShardForOwner(ownerID)
}

// DatabaseForShard returns the database for shardID.
func (r *Router) DatabaseForShard(shardID int32) (*db.ShardDB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.databases[shardID]
	if !ok {
		return nil, taoerr.New("router.DatabaseForShard", taoerr.NotFound, fmt.Errorf("no database for shard %d", shardID))
	}
	return d, nil
}

// DatabaseForObject returns the database owning id.
func (r *Router) DatabaseForObject(id idgen.TaoId) (*db.ShardDB, error) {
	return r.DatabaseForShard(r.ShardForObject(id))
}

// DatabaseForOwner returns the database that would own a new entity
// whose owner is ownerID.
func (r *Router) DatabaseForOwner(ownerID int64) (*db.ShardDB, error) {
	shardID, err := r.ShardForOwner(ownerID)
	if err != nil {
		return nil, err
	}
	return r.DatabaseForShard(shardID)
}

// GenerateTaoID resolves a placement shard — ownerID's shard if provided,
// else a load-balanced healthy shard — and mints an ID from that shard's
// generator.
func (r *Router) GenerateTaoID(ownerID *int64) (idgen.TaoId, error) {
	var shardID int32
	if ownerID != nil {
		sid, err := r.ShardForOwner(*ownerID)
		if err != nil {
			return 0, err
		}
		shardID = sid
	} else {
		sid, err := r.nextHealthyShardRoundRobin()
		if err != nil {
			return 0, err
		}
		shardID = sid
	}

	r.mu.RLock()
	gen, ok := r.generators[shardID]
	r.mu.RUnlock()
	if !ok {
		return 0, taoerr.New("router.GenerateTaoID", taoerr.NotFound, fmt.Errorf("no generator for shard %d", shardID))
	}
	return gen.NextID()
}

func (r *Router) nextHealthyShardRoundRobin() (int32, error) {
	healthy := r.topology.HealthyShards()
	sort.Slice(healthy, func(i, j int) bool { return healthy[i] < healthy[j] })
	if len(healthy) == 0 {
		return 0, taoerr.New("router.nextHealthyShardRoundRobin", taoerr.ServiceUnavailable, fmt.Errorf("no healthy shards available"))
	}
	idx := atomic.AddUint64(&r.rrCounter, 1) % uint64(len(healthy))
	return healthy[idx], nil
}

// GetByIDAndType groups ids by owning shard, issues one query per shard
// concurrently, and concatenates the results. Order within the input is
// NOT preserved; callers needing input order must zip by ID themselves.
func (r *Router) GetByIDAndType(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byShard := make(map[int32][]idgen.TaoId)
	for _, id := range ids {
		shardID := r.ShardForObject(id)
		byShard[shardID] = append(byShard[shardID], id)
	}

	type result struct {
		objs []db.Object
		err  error
	}
	results := make(chan result, len(byShard))
	var wg sync.WaitGroup
	for shardID, shardIDs := range byShard {
		shardID, shardIDs := shardID, shardIDs
		wg.Add(1)
		go func() {
			defer wg.Done()
			database, err := r.DatabaseForShard(shardID)
			if err != nil {
				results <- result{err: err}
				return
			}
			objs, err := database.GetObjects(ctx, shardIDs, otype)
			results <- result{objs: objs, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var out []db.Object
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		out = append(out, res.objs...)
	}
	return out, nil
}
