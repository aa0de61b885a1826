package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/cache"
	"github.com/dreamware/taograph/internal/cluster"
	"github.com/dreamware/taograph/internal/config"
	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/router"
	"github.com/dreamware/taograph/internal/tao"
	"github.com/dreamware/taograph/internal/topology"
)

func newTestAdmin(t *testing.T) *adminServer {
	t.Helper()
	top := topology.New(1)
	r := router.New(top)

	for shardID := int32(0); shardID < 2; shardID++ {
		dsn := "file:taoserver_admin_" + time.Now().Format("150405.000000000") + "_" + string(rune('a'+shardID)) + "?mode=memory&cache=shared"
		shardDB, err := db.Open(shardID, dsn, 4, time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { shardDB.Close() })
		r.AddShard(topology.ShardInfo{ShardID: shardID, ConnectionString: dsn}, shardDB)
	}

	c := cache.New(100)
	fs := afero.NewMemMapFs()
	cfg := config.WAL{MaxRetryAttempts: 3, MaxTransactionAge: time.Hour, BaseRetryDelay: time.Millisecond, MaxRetryDelay: 10 * time.Millisecond, CleanupInterval: time.Hour}

	chain, err := tao.Build(r, c, fs, "/wal", cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	chain.WAL.Start(context.Background())
	t.Cleanup(func() { chain.WAL.Close() })

	return newAdminServer(top, chain, r, zap.NewNop())
}

func TestAdminHealth_ReportsAllRegisteredShards(t *testing.T) {
	admin := newTestAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	rec := httptest.NewRecorder()

	admin.handleHealth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report cluster.HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.True(t, report.Healthy)
	assert.ElementsMatch(t, []int32{0, 1}, report.ShardIDs)
}

func TestAdminMarkShardFailed_TransitionsShardHealth(t *testing.T) {
	admin := newTestAdmin(t)
	body := strings.NewReader(`{"shard_id":1,"reason":"integration test"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/shard/mark-failed", body)
	rec := httptest.NewRecorder()

	admin.handleMarkShardFailed(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	info, ok := admin.top.Get(1)
	require.True(t, ok)
	assert.Equal(t, topology.Failed, info.Health)

	healthReq := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	healthRec := httptest.NewRecorder()
	admin.handleHealth(healthRec, healthReq)
	var report cluster.HealthReport
	require.NoError(t, json.NewDecoder(healthRec.Body).Decode(&report))
	assert.False(t, report.Healthy)
}

func TestAdminExecuteQuery_ReturnsRows(t *testing.T) {
	admin := newTestAdmin(t)
	ctx := context.Background()

	id, err := admin.chain.Operations.GenerateID(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, admin.chain.Operations.CreateObject(ctx, id, "ent_user", []byte("alice")))

	shardID := admin.router.ShardForObject(id)
	body := strings.NewReader(`{"shard_id":` + strconv.FormatInt(int64(shardID), 10) + `,"query":"SELECT otype FROM objects WHERE id = ?","args":[` +
		strconv.FormatInt(int64(id), 10) + `]}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/execute-query", body)
	rec := httptest.NewRecorder()

	admin.handleExecuteQuery(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []db.Row
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "ent_user", rows[0]["otype"])
}

func TestAdminShardDump_ReturnsFullScanOfOneShard(t *testing.T) {
	admin := newTestAdmin(t)
	ctx := context.Background()

	owner := int64(0)
	id1, err := admin.chain.Operations.GenerateID(ctx, &owner)
	require.NoError(t, err)
	id2, err := admin.chain.Operations.GenerateID(ctx, &owner)
	require.NoError(t, err)
	require.NoError(t, admin.chain.Operations.CreateObject(ctx, id1, "ent_user", []byte("a")))
	require.NoError(t, admin.chain.Operations.CreateObject(ctx, id2, "ent_user", []byte("b")))
	require.NoError(t, admin.chain.Operations.AssocAdd(ctx, db.Association{ID1: id1, AType: "friend", ID2: id2, Time: time.Now()}))

	shardID := admin.router.ShardForObject(id1)
	req := httptest.NewRequest(http.MethodGet, "/admin/shard/dump?shard_id="+strconv.FormatInt(int64(shardID), 10), nil)
	rec := httptest.NewRecorder()

	admin.handleShardDump(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dump shardDumpResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dump))
	assert.NotEmpty(t, dump.Objects)
	assert.NotEmpty(t, dump.Associations)
}

func TestAdminShardDump_RejectsMissingShardID(t *testing.T) {
	admin := newTestAdmin(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/shard/dump", nil)
	rec := httptest.NewRecorder()

	admin.handleShardDump(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
