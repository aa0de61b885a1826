package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/topology"
)

func newTestRouter(t *testing.T, numShards int32) *Router {
	t.Helper()
	top := topology.New(1)
	r := New(top)
	for i := int32(0); i < numShards; i++ {
		dsn := "file:router_test_" + time.Now().Format("150405.000000000") + "_" + string(rune('a'+i)) + "?mode=memory&cache=shared"
		sdb, err := db.Open(i, dsn, 4, time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { sdb.Close() })
		r.AddShard(topology.ShardInfo{ShardID: i, ConnectionString: dsn}, sdb)
	}
	return r
}

func TestGenerateTaoID_EmbedsPlacementShard(t *testing.T) {
	r := newTestRouter(t, 4)
	owner := int64(555)
	shardID, err := r.ShardForOwner(owner)
	require.NoError(t, err)

	id, err := r.GenerateTaoID(&owner)
	require.NoError(t, err)
	assert.Equal(t, shardID, r.ShardForObject(id))
}

func TestGenerateTaoID_LoadBalancesAcrossHealthyShards(t *testing.T) {
	r := newTestRouter(t, 3)
	seen := make(map[int32]bool)
	for i := 0; i < 12; i++ {
		id, err := r.GenerateTaoID(nil)
		require.NoError(t, err)
		seen[r.ShardForObject(id)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestGetByIDAndType_EmptyInputTouchesNoDatabases(t *testing.T) {
	r := newTestRouter(t, 2)
	objs, err := r.GetByIDAndType(context.Background(), nil, "ent_user")
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestGetByIDAndType_FansOutAcrossShards(t *testing.T) {
	r := newTestRouter(t, 4)
	ctx := context.Background()

	var ids []idgen.TaoId
	for i := 0; i < 8; i++ {
		owner := int64(i)
		id, err := r.GenerateTaoID(&owner)
		require.NoError(t, err)
		database, err := r.DatabaseForObject(id)
		require.NoError(t, err)
		require.NoError(t, database.CreateObject(ctx, id, "ent_user", []byte("x")))
		ids = append(ids, id)
	}

	objs, err := r.GetByIDAndType(ctx, ids, "ent_user")
	require.NoError(t, err)
	assert.Len(t, objs, 8)
}
