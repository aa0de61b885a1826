package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/config"
	"github.com/dreamware/taograph/internal/taoerr"
)

func openAppendFlags() int { return os.O_APPEND | os.O_CREATE | os.O_RDWR }

const (
	logFileName   = "wal.log"
	indexFileName = "wal.index"
)

type recordKind string

const (
	recordTransaction recordKind = "transaction"
	recordStatus      recordKind = "status"
)

// record is one newline-delimited JSON line in wal.log.
type record struct {
	Kind      recordKind `json:"kind"`
	TxnID     string     `json:"txn_id"`
	Timestamp time.Time  `json:"timestamp"`

	// Present when Kind == recordTransaction.
	Operations []Operation `json:"operations,omitempty"`

	// Present when Kind == recordStatus.
	Status              Status     `json:"status,omitempty"`
	RetryCount          int        `json:"retry_count,omitempty"`
	CompletedOperations []int      `json:"completed_operations,omitempty"`
	FailedOperations    []FailedOp `json:"failed_operations,omitempty"`
}

// indexRecord is one newline-delimited JSON line in wal.index: a compact
// status trail appended on every status transition. Startup replay does
// not read wal.index; it rebuilds state from wal.log alone.
type indexRecord struct {
	TxnID     string    `json:"txn_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// WAL is the durable write-ahead log described in spec.md §4.7. It
// serializes every status transition to an append-only log and index
// pair via afero, keeps an in-memory index for fast lookups, and owns a
// retry worker plus a cleanup worker.
type WAL struct {
	fs  afero.Fs
	dir string

	logMu   sync.Mutex
	logFile afero.File

	indexMu   sync.Mutex
	indexFile afero.File

	stateMu sync.RWMutex
	entries map[string]*Entry
	waiters map[string][]chan struct{}

	executor Executor
	cfg      config.WAL
	logger   *zap.Logger

	retryQueue chan string
	stopOnce   sync.Once
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// Open opens (creating if absent) the log and index files under dir on
// fs, replays the index to rebuild in-memory state for any transaction
// that never reached a terminal status, and returns a ready WAL. Callers
// must call Start to launch the retry/cleanup workers and Close to flush
// and release the files.
func Open(fs afero.Fs, dir string, executor Executor, cfg config.WAL, logger *zap.Logger) (*WAL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, taoerr.New("wal.Open", taoerr.Fatal, err)
	}

	w := &WAL{
		fs:         fs,
		dir:        dir,
		entries:    make(map[string]*Entry),
		waiters:    make(map[string][]chan struct{}),
		executor:   executor,
		cfg:        cfg,
		logger:     logger,
		retryQueue: make(chan string, 1024),
		stopCh:     make(chan struct{}),
	}

	if err := w.replay(); err != nil {
		return nil, err
	}

	logFile, err := fs.OpenFile(w.path(logFileName), openAppendFlags(), 0o644)
	if err != nil {
		return nil, taoerr.New("wal.Open", taoerr.Fatal, err)
	}
	w.logFile = logFile

	indexFile, err := fs.OpenFile(w.path(indexFileName), openAppendFlags(), 0o644)
	if err != nil {
		return nil, taoerr.New("wal.Open", taoerr.Fatal, err)
	}
	w.indexFile = indexFile

	return w, nil
}

func (w *WAL) path(name string) string { return w.dir + "/" + name }

// Start launches the retry worker and the cron-driven cleanup worker.
// Any non-terminal transaction recovered by replay is immediately queued
// for retry; one recovered as Pending or Executing is first marked
// Failed, since its execution was interrupted.
func (w *WAL) Start(ctx context.Context) {
	w.stateMu.RLock()
	recovered := make([]string, 0, len(w.entries))
	for id := range w.entries {
		recovered = append(recovered, id)
	}
	w.stateMu.RUnlock()
	for _, id := range recovered {
		if e, ok := w.snapshot(id); ok && e.Status != Failed {
			if err := w.setStatus(id, Failed, nil, nil); err != nil {
				continue
			}
		}
		w.enqueueRetry(id)
	}

	w.wg.Add(1)
	go w.retryWorker(ctx)

	w.wg.Add(1)
	go w.cleanupWorker(ctx)
}

// Close stops the background workers and closes the underlying files.
func (w *WAL) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()

	w.logMu.Lock()
	err1 := w.logFile.Close()
	w.logMu.Unlock()

	w.indexMu.Lock()
	err2 := w.indexFile.Close()
	w.indexMu.Unlock()

	if err1 != nil {
		return err1
	}
	return err2
}

// replay scans wal.log and loads every non-terminal transaction into
// memory so the retry worker can pick it back up after a restart.
// wal.index exists alongside it as the compact status trail an operator
// or recovery tool can tail without replaying the full operation
// payloads.
func (w *WAL) replay() error {
	if exists, _ := afero.Exists(w.fs, w.path(logFileName)); !exists {
		return nil
	}
	f, err := w.fs.Open(w.path(logFileName))
	if err != nil {
		return taoerr.New("wal.replay", taoerr.Fatal, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		switch rec.Kind {
		case recordTransaction:
			w.entries[rec.TxnID] = &Entry{
				TxnID:      rec.TxnID,
				Operations: rec.Operations,
				Status:     Pending,
				CreatedAt:  rec.Timestamp,
			}
		case recordStatus:
			if e, ok := w.entries[rec.TxnID]; ok {
				e.Status = rec.Status
				e.RetryCount = rec.RetryCount
				e.CompletedOperations = rec.CompletedOperations
				e.FailedOperations = rec.FailedOperations
				e.LastAttemptAt = rec.Timestamp
			}
		}
	}

	for id, e := range w.entries {
		if e.Status.Terminal() {
			delete(w.entries, id)
		}
	}
	return nil
}

func (w *WAL) appendLog(rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return taoerr.New("wal.appendLog", taoerr.Serialization, err)
	}
	w.logMu.Lock()
	defer w.logMu.Unlock()
	if _, err := w.logFile.Write(append(b, '\n')); err != nil {
		return taoerr.New("wal.appendLog", taoerr.TransientIO, err)
	}
	return w.logFile.Sync()
}

func (w *WAL) appendIndex(ir indexRecord) error {
	b, err := json.Marshal(ir)
	if err != nil {
		return taoerr.New("wal.appendIndex", taoerr.Serialization, err)
	}
	w.indexMu.Lock()
	defer w.indexMu.Unlock()
	if _, err := w.indexFile.Write(append(b, '\n')); err != nil {
		return taoerr.New("wal.appendIndex", taoerr.TransientIO, err)
	}
	return w.indexFile.Sync()
}

// LogOperations durably records a new Pending transaction and returns
// its txn_id. It does not execute the operations; callers that want
// immediate execution should use ExecuteCrossShardTransaction.
func (w *WAL) LogOperations(ops []Operation) (string, error) {
	txnID := uuid.NewString()
	now := time.Now()

	if err := w.appendLog(record{Kind: recordTransaction, TxnID: txnID, Timestamp: now, Operations: ops}); err != nil {
		return "", err
	}
	if err := w.appendIndex(indexRecord{TxnID: txnID, Status: Pending, Timestamp: now}); err != nil {
		return "", err
	}

	w.stateMu.Lock()
	w.entries[txnID] = &Entry{TxnID: txnID, Operations: ops, Status: Pending, CreatedAt: now}
	w.stateMu.Unlock()
	return txnID, nil
}

func (w *WAL) setStatus(txnID string, status Status, completed []int, failed []FailedOp) error {
	now := time.Now()

	w.stateMu.Lock()
	e, ok := w.entries[txnID]
	if !ok {
		w.stateMu.Unlock()
		return taoerr.New("wal.setStatus", taoerr.NotFound, fmt.Errorf("unknown transaction %s", txnID))
	}
	e.Status = status
	e.LastAttemptAt = now
	if completed != nil {
		e.CompletedOperations = completed
	}
	if failed != nil {
		e.FailedOperations = failed
	}
	retryCount := e.RetryCount
	terminal := status.Terminal()
	if terminal {
		delete(w.entries, txnID)
	}
	w.stateMu.Unlock()

	if err := w.appendIndex(indexRecord{TxnID: txnID, Status: status, Timestamp: now}); err != nil {
		return err
	}
	if err := w.appendLog(record{
		Kind: recordStatus, TxnID: txnID, Timestamp: now, Status: status,
		RetryCount: retryCount, CompletedOperations: completed, FailedOperations: failed,
	}); err != nil {
		return err
	}

	if terminal {
		w.notifyWaiters(txnID)
	}
	return nil
}

// MarkCommitted transitions txnID to Committed.
func (w *WAL) MarkCommitted(txnID string) error {
	return w.setStatus(txnID, Committed, nil, nil)
}

// MarkFailed transitions txnID to Failed and enqueues it for retry.
func (w *WAL) MarkFailed(txnID string, failed []FailedOp) error {
	if err := w.setStatus(txnID, Failed, nil, failed); err != nil {
		return err
	}
	w.enqueueRetry(txnID)
	return nil
}

// MarkAborted transitions txnID straight to the terminal Aborted status,
// with no retry enqueue. It is the outcome for a failure whose
// taoerr.Kind means re-executing the same operation can never succeed
// (Validation, NotFound, Conflict, Serialization, ...) per spec.md §7 —
// only TransientIO and unclassified (Unknown) failures go through
// MarkFailed's retry path.
func (w *WAL) MarkAborted(txnID string, failed []FailedOp) error {
	return w.setStatus(txnID, Aborted, nil, failed)
}

func (w *WAL) enqueueRetry(txnID string) {
	select {
	case w.retryQueue <- txnID:
	default:
		w.logger.Warn("wal retry queue full, dropping enqueue; cleanup worker will abort stale entries", zap.String("txn_id", txnID))
	}
}

// ExecuteCrossShardTransaction logs ops, then executes them in order
// against the configured Executor. It returns the txn_id immediately;
// the transaction reaches Committed or Aborted asynchronously (possibly
// after passing through Failed and the retry worker) and callers
// observe the outcome via WaitForTransaction.
func (w *WAL) ExecuteCrossShardTransaction(ctx context.Context, ops []Operation) (string, error) {
	txnID, err := w.LogOperations(ops)
	if err != nil {
		return "", err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.executeAndRecord(ctx, txnID, ops)
	}()
	return txnID, nil
}

func (w *WAL) executeAndRecord(ctx context.Context, txnID string, ops []Operation) {
	_ = w.setStatus(txnID, Executing, nil, nil)

	var completed []int
	for i, op := range ops {
		if err := w.executor.Execute(ctx, op); err != nil {
			failed := []FailedOp{{Index: i, Error: err.Error()}}
			// spec.md §7 is explicit per-kind: only TransientIO is
			// retried. Validation/NotFound/Conflict/Serialization/... are
			// never going to succeed on a bare re-execution, so they go
			// straight to the terminal Aborted status instead of cycling
			// through the retry queue. An unclassified (Unknown) error —
			// one that never passed through taoerr.New — is retried the
			// same as TransientIO rather than aborted on sight, since the
			// alternative is silently giving up on a cause we didn't
			// actually identify as permanent.
			if kind := taoerr.KindOf(err); kind == taoerr.TransientIO || kind == taoerr.Unknown {
				if err := w.MarkFailed(txnID, failed); err != nil {
					w.logger.Error("wal failed to record failed transaction", zap.String("txn_id", txnID), zap.Error(err))
				}
			} else {
				if err := w.MarkAborted(txnID, failed); err != nil {
					w.logger.Error("wal failed to record aborted transaction", zap.String("txn_id", txnID), zap.Error(err))
				}
			}
			return
		}
		completed = append(completed, i)
	}

	if err := w.setStatus(txnID, Committed, completed, nil); err != nil {
		w.logger.Error("wal failed to record committed transaction", zap.String("txn_id", txnID), zap.Error(err))
	}
}

// WaitForTransaction blocks until txnID reaches a terminal status or
// timeout elapses, returning the last observed status.
func (w *WAL) WaitForTransaction(ctx context.Context, txnID string, timeout time.Duration) (Status, error) {
	w.stateMu.Lock()
	e, ok := w.entries[txnID]
	if !ok {
		w.stateMu.Unlock()
		// Already terminal (and thus removed from the live map) or unknown.
		return Committed, nil
	}
	done := make(chan struct{})
	w.waiters[txnID] = append(w.waiters[txnID], done)
	w.stateMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		w.stateMu.RLock()
		status := e.Status
		w.stateMu.RUnlock()
		return status, nil
	case <-timer.C:
		return Executing, taoerr.New("wal.WaitForTransaction", taoerr.Timeout, fmt.Errorf("transaction %s did not complete within %s", txnID, timeout))
	case <-ctx.Done():
		return Executing, taoerr.New("wal.WaitForTransaction", taoerr.Timeout, ctx.Err())
	}
}

func (w *WAL) notifyWaiters(txnID string) {
	w.stateMu.Lock()
	chans := w.waiters[txnID]
	delete(w.waiters, txnID)
	w.stateMu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// GetPendingRetries returns the txn_ids currently in Failed status,
// oldest first.
func (w *WAL) GetPendingRetries() []string {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()

	var ids []string
	for id, e := range w.entries {
		if e.Status == Failed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return w.entries[ids[i]].LastAttemptAt.Before(w.entries[ids[j]].LastAttemptAt)
	})
	return ids
}

// GetTransactionOperations returns the operations logged for txnID.
func (w *WAL) GetTransactionOperations(txnID string) ([]Operation, error) {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	e, ok := w.entries[txnID]
	if !ok {
		return nil, taoerr.New("wal.GetTransactionOperations", taoerr.NotFound, fmt.Errorf("unknown transaction %s", txnID))
	}
	return append([]Operation(nil), e.Operations...), nil
}

// IncrementRetryCount bumps txnID's retry counter and returns the new
// value.
func (w *WAL) IncrementRetryCount(txnID string) (int, error) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	e, ok := w.entries[txnID]
	if !ok {
		return 0, taoerr.New("wal.IncrementRetryCount", taoerr.NotFound, fmt.Errorf("unknown transaction %s", txnID))
	}
	e.RetryCount++
	return e.RetryCount, nil
}

// GetStats summarizes the in-memory index by status.
func (w *WAL) GetStats() Stats {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	var s Stats
	for _, e := range w.entries {
		switch e.Status {
		case Pending:
			s.Pending++
		case Executing:
			s.Executing++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// snapshot returns a defensive copy of txnID's entry, for tests and the
// retry worker.
func (w *WAL) snapshot(txnID string) (*Entry, bool) {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	e, ok := w.entries[txnID]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}
