// Command taoserver wires the storage engine's packages into one
// runnable process: topology, per-shard databases, the two-tier cache,
// the write-ahead log, the decorated TAO core, and the eventual
// consistency manager. It exposes a minimal admin HTTP surface
// (health, the execute_query escape hatch, and a manual shard
// mark-failed endpoint) and otherwise has no client-facing API of its
// own — the HTTP/RPC façade that would front this engine in production
// is an external collaborator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/cache"
	"github.com/dreamware/taograph/internal/cluster"
	"github.com/dreamware/taograph/internal/config"
	"github.com/dreamware/taograph/internal/consistency"
	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/router"
	"github.com/dreamware/taograph/internal/tao"
	"github.com/dreamware/taograph/internal/topology"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "taoserver: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Load()
	if err := run(cfg, logger); err != nil {
		logger.Fatal("taoserver exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	top := topology.New(cfg.Router.ReplicationFactor)
	r := router.New(top)

	closers := make([]func() error, 0, cfg.Server.ShardCount)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("error closing resource during shutdown", zap.Error(err))
			}
		}
	}()

	for shardID := int32(0); int(shardID) < cfg.Server.ShardCount; shardID++ {
		dsn := fmt.Sprintf(cfg.Server.DSNTemplate, shardID)
		shardDB, err := db.Open(shardID, dsn, cfg.Database.MaxConnections, cfg.Database.AcquireTimeout)
		if err != nil {
			return fmt.Errorf("opening shard %d database: %w", shardID, err)
		}
		closers = append(closers, shardDB.Close)
		r.AddShard(topology.ShardInfo{ShardID: shardID, ConnectionString: dsn}, shardDB)
	}
	logger.Info("shards opened", zap.Int("count", cfg.Server.ShardCount))

	c := cache.New(cfg.Cache.Capacity)
	closers = append(closers, c.Close)

	fs := afero.NewOsFs()
	chain, err := tao.Build(r, c, fs, cfg.Server.WALDir, cfg.WAL, logger, nil)
	if err != nil {
		return fmt.Errorf("building tao decorator chain: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chain.WAL.Start(ctx)
	closers = append(closers, chain.WAL.Close)

	mgr := consistency.New(chain.Operations, chain.WAL, top, cfg.Consistency, logger)
	mgr.Start(ctx)
	closers = append(closers, func() error { mgr.Close(); return nil })

	admin := newAdminServer(top, chain, r, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.AdminAddr,
		Handler:           admin.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrs := make(chan error, 1)
	go func() {
		logger.Info("admin surface listening", zap.String("addr", cfg.Server.AdminAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serveErrs:
		return fmt.Errorf("admin server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown error", zap.Error(err))
	}
	logger.Info("taoserver stopped")
	return nil
}

// adminServer implements the operational surface described in
// internal/cluster's PeerClient: /admin/health and
// /admin/shard/mark-failed, plus the raw execute_query escape hatch.
type adminServer struct {
	top    *topology.Topology
	chain  *tao.Chain
	router *router.Router
	logger *zap.Logger
}

func newAdminServer(top *topology.Topology, chain *tao.Chain, r *router.Router, logger *zap.Logger) *adminServer {
	return &adminServer{top: top, chain: chain, router: r, logger: logger}
}

func (a *adminServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/health", a.handleHealth)
	mux.HandleFunc("/admin/shard/mark-failed", a.handleMarkShardFailed)
	mux.HandleFunc("/admin/execute-query", a.handleExecuteQuery)
	mux.HandleFunc("/admin/shard/dump", a.handleShardDump)
	return mux
}

type shardDumpResponse struct {
	Objects      []db.Object      `json:"objects"`
	Associations []db.Association `json:"associations"`
}

// handleShardDump serves the graph-export full-scan operations directly
// against a single shard's database, bypassing the cache and WAL layers
// entirely since a full scan has no cache key and is never part of the
// steady-state write path.
func (a *adminServer) handleShardDump(w http.ResponseWriter, r *http.Request) {
	shardIDStr := r.URL.Query().Get("shard_id")
	shardID64, err := strconv.ParseInt(shardIDStr, 10, 32)
	if err != nil {
		http.Error(w, "missing or invalid shard_id query parameter", http.StatusBadRequest)
		return
	}

	database, err := a.router.DatabaseForShard(int32(shardID64))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	objects, err := database.GetAllObjectsFromShard(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	assocs, err := database.GetAllAssociationsFromShard(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, shardDumpResponse{Objects: objects, Associations: assocs})
}

func (a *adminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	shards := a.top.All()
	report := cluster.HealthReport{CheckedAt: time.Now(), Healthy: true}
	for _, s := range shards {
		report.ShardIDs = append(report.ShardIDs, s.ShardID)
		if s.Health == topology.Failed {
			report.Healthy = false
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *adminServer) handleMarkShardFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.MarkShardFailedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.top.UpdateHealth(req.ShardID, topology.Failed); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.logger.Warn("shard marked failed via admin surface",
		zap.Int32("shard_id", req.ShardID), zap.String("reason", req.Reason))
	w.WriteHeader(http.StatusNoContent)
}

type executeQueryRequest struct {
	ShardID int32  `json:"shard_id"`
	Query   string `json:"query"`
	Args    []any  `json:"args"`
}

func (a *adminServer) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req executeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := a.chain.Operations.ExecuteRawQuery(r.Context(), req.ShardID, req.Query, req.Args...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
