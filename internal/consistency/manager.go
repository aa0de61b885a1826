// Package consistency implements the eventual-consistency manager of
// spec.md §4.8: it maps high-level social actions onto one or two
// association writes, takes a direct single-shard fast path when both
// endpoints land on the same shard, and otherwise drives a cross-shard
// WAL transaction with best-effort compensation on partial failure.
package consistency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/config"
	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/tao"
	"github.com/dreamware/taograph/internal/taoerr"
	"github.com/dreamware/taograph/internal/topology"
	"github.com/dreamware/taograph/internal/wal"
)

// Manager coordinates social write actions across shards.
type Manager struct {
	ops   tao.Operations
	wal   *wal.WAL
	topo  *topology.Topology
	cfg   config.Consistency
	logger *zap.Logger

	compensationQueue chan wal.Operation
	stopCh            chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
}

// New constructs a Manager. ops is the fully-decorated TAO core used for
// the single-shard fast path; w is the WAL instance used for multi-shard
// transactions (typically the same *wal.WAL a tao.Chain exposes).
func New(ops tao.Operations, w *wal.WAL, topo *topology.Topology, cfg config.Consistency, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		ops:               ops,
		wal:               w,
		topo:              topo,
		cfg:               cfg,
		logger:            logger,
		compensationQueue: make(chan wal.Operation, 1024),
		stopCh:            make(chan struct{}),
	}
}

// Start launches the compensation worker.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.compensationWorker(ctx)
}

// Close stops the compensation worker.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Follow creates a bidirectional friend_follow/followed_by edge.
func (m *Manager) Follow(ctx context.Context, followerID, followeeID idgen.TaoId) error {
	return m.executeSocialEdge(ctx, followerID, "friend_follow", followeeID)
}

// Like creates a bidirectional like/liked_by edge.
func (m *Manager) Like(ctx context.Context, userID, postID idgen.TaoId) error {
	return m.executeSocialEdge(ctx, userID, "like", postID)
}

// JoinGroup creates a bidirectional group_member/group_has_member edge.
func (m *Manager) JoinGroup(ctx context.Context, userID, groupID idgen.TaoId) error {
	return m.executeSocialEdge(ctx, userID, "group_member", groupID)
}

func (m *Manager) executeSocialEdge(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) error {
	inverseType, err := inverseOf(atype)
	if err != nil {
		return err
	}
	now := time.Now()
	ops := []wal.Operation{
		{Type: wal.OpInsertAssociation, ID1: id1, AType: atype, ID2: id2, Time: now},
		{Type: wal.OpInsertAssociation, ID1: id2, AType: inverseType, ID2: id1, Time: now},
	}
	return m.ExecuteCrossShard(ctx, ops)
}

// ExecuteCrossShard is the generic entry point behind Follow/Like/
// JoinGroup: same-shard operations go straight through the decorated TAO
// core (getting its own per-op WAL durability); operations spanning
// shards get one explicit WAL transaction with compensation on failure.
func (m *Manager) ExecuteCrossShard(ctx context.Context, ops []wal.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	if sameShard(ops) {
		return m.executeDirect(ctx, ops)
	}
	if err := m.checkShardsHealthy(ops); err != nil {
		return err
	}

	txnID, err := m.wal.ExecuteCrossShardTransaction(ctx, ops)
	if err != nil {
		return err
	}
	status, err := m.wal.WaitForTransaction(ctx, txnID, m.cfg.CrossShardTimeout)
	if err != nil {
		if taoerr.KindOf(err) == taoerr.Timeout {
			m.scheduleCompensation(ops)
		}
		return err
	}

	switch status {
	case wal.Committed:
		return nil
	case wal.Failed, wal.Aborted:
		m.scheduleCompensation(ops)
		return taoerr.New("consistency.ExecuteCrossShard", taoerr.TransientIO,
			fmt.Errorf("cross-shard transaction %s ended in status %s, compensation scheduled", txnID, status))
	default:
		m.scheduleCompensation(ops)
		return taoerr.New("consistency.ExecuteCrossShard", taoerr.Timeout,
			fmt.Errorf("cross-shard transaction %s still %s after %s", txnID, status, m.cfg.CrossShardTimeout))
	}
}

func (m *Manager) executeDirect(ctx context.Context, ops []wal.Operation) error {
	applied := make([]wal.Operation, 0, len(ops))
	for _, op := range ops {
		if err := m.apply(ctx, op); err != nil {
			m.scheduleCompensation(applied)
			return err
		}
		applied = append(applied, op)
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, op wal.Operation) error {
	switch op.Type {
	case wal.OpInsertAssociation:
		return m.ops.AssocAdd(ctx, db.Association{ID1: op.ID1, AType: op.AType, ID2: op.ID2, Time: op.Time})
	case wal.OpDeleteAssociation:
		_, err := m.ops.AssocDelete(ctx, op.ID1, op.AType, op.ID2)
		return err
	case wal.OpInsertObject:
		return m.ops.CreateObject(ctx, op.ObjectID, op.OType, op.Data)
	case wal.OpUpdateObject:
		return m.ops.UpdateObject(ctx, op.ObjectID, op.Data)
	case wal.OpDeleteObject:
		_, err := m.ops.DeleteObject(ctx, op.ObjectID)
		return err
	default:
		return taoerr.New("consistency.apply", taoerr.Validation, fmt.Errorf("unknown operation type %q", op.Type))
	}
}

// checkShardsHealthy fails fast when any shard a cross-shard transaction
// touches is known-unhealthy, rather than letting the WAL retry loop
// discover that the hard way.
func (m *Manager) checkShardsHealthy(ops []wal.Operation) error {
	seen := make(map[int32]bool)
	for _, op := range ops {
		shardID := op.ShardID()
		if seen[shardID] {
			continue
		}
		seen[shardID] = true
		info, ok := m.topo.Get(shardID)
		if !ok {
			return taoerr.New("consistency.checkShardsHealthy", taoerr.NotFound, fmt.Errorf("unknown shard %d", shardID))
		}
		if info.Health == topology.Failed {
			return taoerr.New("consistency.checkShardsHealthy", taoerr.ServiceUnavailable, fmt.Errorf("shard %d is marked failed", shardID))
		}
	}
	return nil
}

func sameShard(ops []wal.Operation) bool {
	first := ops[0].ShardID()
	for _, op := range ops[1:] {
		if op.ShardID() != first {
			return false
		}
	}
	return true
}
