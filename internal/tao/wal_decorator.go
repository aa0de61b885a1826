package tao

import (
	"context"
	"fmt"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
	"github.com/dreamware/taograph/internal/wal"
)

// walExecutor adapts an inner Operations into a wal.Executor by
// translating a wal.Operation back into the matching Operations call.
// It is what actually performs the durable side effect once the WAL has
// recorded the intent.
type walExecutor struct {
	inner Operations
}

func (e *walExecutor) Execute(ctx context.Context, op wal.Operation) error {
	switch op.Type {
	case wal.OpInsertObject:
		return e.inner.CreateObject(ctx, op.ObjectID, op.OType, op.Data)
	case wal.OpUpdateObject:
		return e.inner.UpdateObject(ctx, op.ObjectID, op.Data)
	case wal.OpDeleteObject:
		_, err := e.inner.DeleteObject(ctx, op.ObjectID)
		return err
	case wal.OpInsertAssociation:
		return e.inner.AssocAdd(ctx, db.Association{ID1: op.ID1, AType: op.AType, ID2: op.ID2, Time: op.Time})
	case wal.OpDeleteAssociation:
		_, err := e.inner.AssocDelete(ctx, op.ID1, op.AType, op.ID2)
		return err
	default:
		return taoerr.New("tao.walExecutor.Execute", taoerr.Validation, fmt.Errorf("unknown wal operation type %q", op.Type))
	}
}

// NewWALExecutor exposes walExecutor's construction for callers (notably
// the chain builder) that need a wal.Executor
// bound to a specific inner Operations without going through the
// decorator.
func NewWALExecutor(inner Operations) wal.Executor {
	return &walExecutor{inner: inner}
}

// WALDecorator implements the single-operation write path of spec.md
// §4.6: "first call inner; on success, append a log entry and mark it
// committed." The WAL sees already-executed effects, so a write's error
// — including a non-retryable Validation/NotFound/Conflict — surfaces to
// the caller immediately instead of being swallowed into an
// asynchronously retried transaction. The WAL record appended afterward
// is an audit/recovery trail, not a gate the write waits behind; only
// genuine multi-op cross-shard batches (internal/consistency's WAL
// transactions) use the log-before-execute path. Reads pass through
// untouched.
type WALDecorator struct {
	inner Operations
	wal   *wal.WAL
}

// NewWALDecorator wraps inner with w. w must have been opened with a
// wal.Executor that applies operations to the same inner Operations
// (see NewWALExecutor) for its own cross-shard batch path, or those
// writes will never actually land.
func NewWALDecorator(inner Operations, w *wal.WAL) *WALDecorator {
	return &WALDecorator{inner: inner, wal: w}
}

var _ Operations = (*WALDecorator)(nil)

func (d *WALDecorator) GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error) {
	return d.inner.GenerateID(ctx, ownerID)
}

func (d *WALDecorator) GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error) {
	return d.inner.GetObject(ctx, id)
}

func (d *WALDecorator) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	return d.inner.GetObjects(ctx, ids, otype)
}

func (d *WALDecorator) AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error) {
	return d.inner.AssocGet(ctx, q)
}

func (d *WALDecorator) AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	return d.inner.AssocCount(ctx, id1, atype)
}

func (d *WALDecorator) ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error) {
	return d.inner.ExecuteRawQuery(ctx, shardID, query, args...)
}

func (d *WALDecorator) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	if err := d.inner.CreateObject(ctx, id, otype, data); err != nil {
		return err
	}
	return d.auditCommitted(wal.Operation{Type: wal.OpInsertObject, ObjectID: id, OType: otype, Data: data})
}

func (d *WALDecorator) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	if err := d.inner.UpdateObject(ctx, id, data); err != nil {
		return err
	}
	return d.auditCommitted(wal.Operation{Type: wal.OpUpdateObject, ObjectID: id, Data: data})
}

func (d *WALDecorator) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	existed, err := d.inner.DeleteObject(ctx, id)
	if err != nil {
		return false, err
	}
	if err := d.auditCommitted(wal.Operation{Type: wal.OpDeleteObject, ObjectID: id}); err != nil {
		return existed, err
	}
	return existed, nil
}

func (d *WALDecorator) AssocAdd(ctx context.Context, a db.Association) error {
	if err := d.inner.AssocAdd(ctx, a); err != nil {
		return err
	}
	return d.auditCommitted(wal.Operation{Type: wal.OpInsertAssociation, ID1: a.ID1, AType: a.AType, ID2: a.ID2, Time: a.Time})
}

func (d *WALDecorator) AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	existed, err := d.inner.AssocDelete(ctx, id1, atype, id2)
	if err != nil {
		return false, err
	}
	if err := d.auditCommitted(wal.Operation{Type: wal.OpDeleteAssociation, ID1: id1, AType: atype, ID2: id2}); err != nil {
		return existed, err
	}
	return existed, nil
}

// auditCommitted records op as an already-applied write: it logs the
// operation and immediately marks it Committed, giving the replay path
// a durable trail without putting the caller's write behind the WAL's
// retry/compensation machinery, which exists for batches that haven't
// executed yet.
func (d *WALDecorator) auditCommitted(op wal.Operation) error {
	txnID, err := d.wal.LogOperations([]wal.Operation{op})
	if err != nil {
		return err
	}
	return d.wal.MarkCommitted(txnID)
}
