package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

func newTestShardDB(t *testing.T) *ShardDB {
	t.Helper()
	dsn := fmt.Sprintf("file:shard_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	sdb, err := Open(1, dsn, 4, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { sdb.Close() })
	return sdb
}

func TestCreateAndGetObject(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)

	id := idgen.TaoId(1001)
	require.NoError(t, sdb.CreateObject(ctx, id, "ent_user", []byte("payload")))

	obj, err := sdb.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ent_user", obj.OType)
	assert.Equal(t, []byte("payload"), obj.Data)
	assert.Equal(t, int64(1), obj.Version)
	assert.Equal(t, obj.CreatedTime, obj.UpdatedTime)
}

func TestCreateObject_ConflictOnDuplicate(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	id := idgen.TaoId(1)
	require.NoError(t, sdb.CreateObject(ctx, id, "ent_user", []byte("a")))
	err := sdb.CreateObject(ctx, id, "ent_user", []byte("b"))
	require.Error(t, err)
	assert.Equal(t, taoerr.Conflict, taoerr.KindOf(err))
}

func TestUpdateObject_IncrementsVersion(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	id := idgen.TaoId(2)
	require.NoError(t, sdb.CreateObject(ctx, id, "ent_user", []byte("a")))
	require.NoError(t, sdb.UpdateObject(ctx, id, []byte("b")))
	require.NoError(t, sdb.UpdateObject(ctx, id, []byte("c")))

	obj, err := sdb.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), obj.Version)
	assert.Equal(t, []byte("c"), obj.Data)
}

func TestUpdateObject_NotFound(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	err := sdb.UpdateObject(ctx, idgen.TaoId(999), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, taoerr.NotFound, taoerr.KindOf(err))
}

func TestDeleteObject(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	id := idgen.TaoId(3)
	require.NoError(t, sdb.CreateObject(ctx, id, "ent_user", []byte("a")))

	deleted, err := sdb.DeleteObject(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deletedAgain, err := sdb.DeleteObject(ctx, id)
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestAssociationCountStaysConsistent(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)

	id1 := idgen.TaoId(10)
	base := time.Now()
	for i, id2 := range []idgen.TaoId{20, 30, 40} {
		a := Association{ID1: id1, AType: "friend", ID2: id2, Time: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, sdb.CreateAssociation(ctx, a))
	}

	count, err := sdb.CountAssociations(ctx, id1, "friend")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	deleted, err := sdb.DeleteAssociation(ctx, id1, "friend", 30)
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err = sdb.CountAssociations(ctx, id1, "friend")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestCreateAssociation_IdempotentDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	a := Association{ID1: 1, AType: "friend", ID2: 2, Time: time.Now()}
	require.NoError(t, sdb.CreateAssociation(ctx, a))
	require.NoError(t, sdb.CreateAssociation(ctx, a)) // retry of an already-landed insert

	count, err := sdb.CountAssociations(ctx, 1, "friend")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGetAssociations_NeighborExpansionOrder(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	id1 := idgen.TaoId(10)
	base := time.Now()
	require.NoError(t, sdb.CreateAssociation(ctx, Association{ID1: id1, AType: "friend", ID2: 20, Time: base}))
	require.NoError(t, sdb.CreateAssociation(ctx, Association{ID1: id1, AType: "friend", ID2: 40, Time: base.Add(time.Minute)}))

	results, err := sdb.GetAssociations(ctx, AssocQuery{ID1: id1, AType: "friend"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, idgen.TaoId(40), results[0].ID2) // newest first
	assert.Equal(t, idgen.TaoId(20), results[1].ID2)
}

func TestDeleteAssociationAfterCreate_MakesExistsFalse(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)
	require.NoError(t, sdb.CreateAssociation(ctx, Association{ID1: 1, AType: "friend", ID2: 2, Time: time.Now()}))

	deleted, err := sdb.DeleteAssociation(ctx, 1, "friend", 2)
	require.NoError(t, err)
	assert.True(t, deleted)

	results, err := sdb.GetAssociations(ctx, AssocQuery{ID1: 1, AType: "friend", ID2Set: []idgen.TaoId{2}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBeginTransaction_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	sdb := newTestShardDB(t)

	tx, err := sdb.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateObjectTx(ctx, idgen.TaoId(5), "ent_user", []byte("x")))
	require.NoError(t, tx.Commit())

	_, err = sdb.GetObject(ctx, idgen.TaoId(5))
	require.NoError(t, err)

	tx2, err := sdb.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.CreateObjectTx(ctx, idgen.TaoId(6), "ent_user", []byte("y")))
	require.NoError(t, tx2.Rollback())

	_, err = sdb.GetObject(ctx, idgen.TaoId(6))
	require.Error(t, err)
	assert.Equal(t, taoerr.NotFound, taoerr.KindOf(err))
}
