package wal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// retryWorker drains the retry queue. Each dequeued transaction gets
// exactly one more attempt, after sleeping the spec-exact exponential
// backoff delay for its current retry count; a failed attempt
// re-enqueues itself via MarkFailed, so the queue itself drives the
// retry loop rather than a blocking per-transaction loop. A transaction
// that has exhausted its attempt budget is aborted instead of retried
// again.
func (w *WAL) retryWorker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case txnID := <-w.retryQueue:
			w.retryOne(ctx, txnID)
		}
	}
}

func (w *WAL) retryOne(ctx context.Context, txnID string) {
	e, ok := w.snapshot(txnID)
	if !ok || e.Status != Failed {
		return
	}

	bo := newSpecBackoff(w.cfg)
	bo.attempt = e.RetryCount
	delay := bo.NextBackOff()
	if delay < 0 {
		if err := w.setStatus(txnID, Aborted, nil, nil); err != nil {
			w.logger.Error("wal failed to abort exhausted transaction", zap.String("txn_id", txnID), zap.Error(err))
		}
		return
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	case <-w.stopCh:
		return
	}

	if _, err := w.IncrementRetryCount(txnID); err != nil {
		return
	}
	w.executeAndRecord(ctx, txnID, e.Operations)
}
