package wal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cleanupWorker runs a cron.Cron job on cfg.CleanupInterval that aborts
// any transaction older than cfg.MaxTransactionAge which has not reached
// a terminal status, preventing a stuck transaction from blocking the
// retry queue forever.
func (w *WAL) cleanupWorker(ctx context.Context) {
	defer w.wg.Done()

	interval := w.cfg.CleanupInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	c := cron.New()
	id, err := c.AddFunc("@every "+interval.String(), func() { w.abortStaleTransactions() })
	if err != nil {
		w.logger.Error("wal cleanup worker failed to schedule", zap.Error(err))
		return
	}
	c.Start()
	defer func() {
		c.Remove(id)
		<-c.Stop().Done()
	}()

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

func (w *WAL) abortStaleTransactions() {
	cutoff := time.Now().Add(-w.cfg.MaxTransactionAge)

	w.stateMu.RLock()
	var stale []string
	for id, e := range w.entries {
		if e.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	w.stateMu.RUnlock()

	for _, id := range stale {
		if err := w.setStatus(id, Aborted, nil, nil); err != nil {
			w.logger.Error("wal cleanup failed to abort stale transaction", zap.String("txn_id", id), zap.Error(err))
			continue
		}
		w.logger.Warn("wal aborted stale transaction", zap.String("txn_id", id))
	}
}
