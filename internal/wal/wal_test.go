package wal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/config"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

type fakeExecutor struct {
	mu       sync.Mutex
	failNext int
	calls    int
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, op Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return errors.New("simulated shard failure")
	}
	return f.err
}

func testCfg() config.WAL {
	return config.WAL{
		MaxRetryAttempts:  3,
		MaxTransactionAge: time.Hour,
		BaseRetryDelay:    time.Millisecond,
		MaxRetryDelay:     10 * time.Millisecond,
		CleanupInterval:   time.Hour,
	}
}

func sampleOps() []Operation {
	return []Operation{
		{Type: OpInsertObject, ObjectID: idgen.TaoId(1 << 22), OType: "ent_user", Data: []byte("x")},
		{Type: OpInsertAssociation, ID1: idgen.TaoId(1 << 22), AType: "friend", ID2: idgen.TaoId(2 << 22)},
	}
}

func TestLogOperations_PersistsPendingEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := Open(fs, "/wal", &fakeExecutor{}, testCfg(), zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	txnID, err := w.LogOperations(sampleOps())
	require.NoError(t, err)

	ops, err := w.GetTransactionOperations(txnID)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	stats := w.GetStats()
	assert.Equal(t, 1, stats.Pending)
}

func TestExecuteCrossShardTransaction_CommitsOnSuccess(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &fakeExecutor{}
	w, err := Open(fs, "/wal", exec, testCfg(), zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	txnID, err := w.ExecuteCrossShardTransaction(context.Background(), sampleOps())
	require.NoError(t, err)

	status, err := w.WaitForTransaction(context.Background(), txnID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Committed, status)
	assert.Equal(t, 2, exec.calls)
}

func TestExecuteCrossShardTransaction_RetriesThenCommits(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &fakeExecutor{failNext: 1}
	w, err := Open(fs, "/wal", exec, testCfg(), zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	txnID, err := w.ExecuteCrossShardTransaction(context.Background(), sampleOps()[:1])
	require.NoError(t, err)

	status, err := w.WaitForTransaction(context.Background(), txnID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Committed, status)
}

func TestExecuteCrossShardTransaction_AbortsAfterExhaustingRetries(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &fakeExecutor{err: errors.New("permanent shard outage")}
	cfg := testCfg()
	cfg.MaxRetryAttempts = 1
	w, err := Open(fs, "/wal", exec, cfg, zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	txnID, err := w.ExecuteCrossShardTransaction(context.Background(), sampleOps()[:1])
	require.NoError(t, err)

	status, err := w.WaitForTransaction(context.Background(), txnID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Aborted, status)
}

// kindedExecutor always fails with a fixed taoerr.Kind, for asserting
// that executeAndRecord branches on Kind rather than retrying uniformly.
type kindedExecutor struct {
	mu    sync.Mutex
	kind  taoerr.Kind
	calls int
}

func (f *kindedExecutor) Execute(ctx context.Context, op Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return taoerr.New("kindedExecutor.Execute", f.kind, errors.New("op rejected"))
}

func (f *kindedExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestExecuteCrossShardTransaction_ValidationFailureIsAbortedNotRetried(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &kindedExecutor{kind: taoerr.Validation}
	cfg := testCfg()
	cfg.MaxRetryAttempts = 5
	w, err := Open(fs, "/wal", exec, cfg, zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	txnID, err := w.ExecuteCrossShardTransaction(context.Background(), sampleOps()[:1])
	require.NoError(t, err)

	status, err := w.WaitForTransaction(context.Background(), txnID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Aborted, status)

	// A Validation failure can never succeed on bare re-execution, so it
	// must reach Aborted on the very first attempt with nothing queued
	// for retry.
	assert.Equal(t, 1, exec.callCount())
	assert.Empty(t, w.GetPendingRetries())
}

func TestExecuteCrossShardTransaction_TransientIOFailureIsRetried(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &kindedExecutor{kind: taoerr.TransientIO}
	cfg := testCfg()
	cfg.MaxRetryAttempts = 2
	w, err := Open(fs, "/wal", exec, cfg, zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	txnID, err := w.ExecuteCrossShardTransaction(context.Background(), sampleOps()[:1])
	require.NoError(t, err)

	status, err := w.WaitForTransaction(context.Background(), txnID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Aborted, status) // eventually exhausts its retry budget

	// Unlike the Validation case, a TransientIO failure is retried at
	// least once before the retry worker gives up.
	assert.Greater(t, exec.callCount(), 1)
}

func TestWaitForTransaction_TimesOutWhenStuck(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := Open(fs, "/wal", &fakeExecutor{}, testCfg(), zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	// Logged but never executed: status stays Pending forever.
	txnID, err := w.LogOperations(sampleOps())
	require.NoError(t, err)

	_, err = w.WaitForTransaction(context.Background(), txnID, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestReplay_RestoresNonTerminalTransactionAcrossReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	w1, err := Open(fs, "/wal", &fakeExecutor{}, testCfg(), zap.NewNop())
	require.NoError(t, err)
	txnID, err := w1.LogOperations(sampleOps())
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := Open(fs, "/wal", &fakeExecutor{}, testCfg(), zap.NewNop())
	require.NoError(t, err)
	defer w2.Close()

	ops, err := w2.GetTransactionOperations(txnID)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestReplay_DropsCommittedTransactions(t *testing.T) {
	fs := afero.NewMemMapFs()
	w1, err := Open(fs, "/wal", &fakeExecutor{}, testCfg(), zap.NewNop())
	require.NoError(t, err)
	txnID, err := w1.LogOperations(sampleOps())
	require.NoError(t, err)
	require.NoError(t, w1.MarkCommitted(txnID))
	require.NoError(t, w1.Close())

	w2, err := Open(fs, "/wal", &fakeExecutor{}, testCfg(), zap.NewNop())
	require.NoError(t, err)
	defer w2.Close()

	_, err = w2.GetTransactionOperations(txnID)
	assert.Error(t, err)
}
