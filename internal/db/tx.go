package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// Tx is an explicit transaction handle over a shard, used by the
// consistency manager and WAL replay to group multiple writes on the
// same shard atomically. Tx never spans shards — cross-shard atomicity
// is provided exclusively by the write-ahead log, never by a
// cross-shard database transaction.
type Tx struct {
	tx   *sqlx.Tx
	done bool
}

// BeginTransaction starts a new Tx on this shard.
func (s *ShardDB) BeginTransaction(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, taoerr.New("db.BeginTransaction", taoerr.TransientIO, err)
	}
	return &Tx{tx: tx}, nil
}

// CreateObjectTx inserts an object within the transaction.
func (t *Tx) CreateObjectTx(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	now := time.Now().UnixMilli()
	res, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO objects (id, otype, time_created, time_updated, data, version) VALUES (?, ?, ?, ?, ?, 1)`,
		int64(id), otype, now, now, data)
	if err != nil {
		return taoerr.New("db.CreateObjectTx", taoerr.TransientIO, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taoerr.New("db.CreateObjectTx", taoerr.Conflict, taoerr.ErrObjectExists)
	}
	return nil
}

// CreateAssociationTx inserts an association and updates its count index
// within the transaction, honoring the same "only count what was
// actually inserted" discipline as ShardDB.CreateAssociation.
func (t *Tx) CreateAssociationTx(ctx context.Context, a Association) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO associations (id1, atype, id2, time_created, data) VALUES (?, ?, ?, ?, ?)`,
		int64(a.ID1), a.AType, int64(a.ID2), a.Time.UnixMilli(), a.Data)
	if err != nil {
		return taoerr.New("db.CreateAssociationTx", taoerr.TransientIO, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return bumpCount(ctx, t.tx, a.ID1, a.AType, 1)
	}
	return nil
}

// DeleteAssociationTx removes an association and updates its count index
// within the transaction.
func (t *Tx) DeleteAssociationTx(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM associations WHERE id1 = ? AND atype = ? AND id2 = ?`,
		int64(id1), atype, int64(id2))
	if err != nil {
		return false, taoerr.New("db.DeleteAssociationTx", taoerr.TransientIO, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := bumpCount(ctx, t.tx, id1, atype, -1); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

// UpdateAssociationCountTx directly sets the count index for (id, atype)
// to an absolute value, used by administrative repair tooling to correct
// drift rather than by the steady-state write path.
func (t *Tx) UpdateAssociationCountTx(ctx context.Context, id idgen.TaoId, atype string, count int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO association_counts (id, atype, count, updated_time) VALUES (?, ?, ?, ?)
		ON CONFLICT(id, atype) DO UPDATE SET count = excluded.count, updated_time = excluded.updated_time`,
		int64(id), atype, count, time.Now().UnixMilli())
	if err != nil {
		return taoerr.New("db.UpdateAssociationCountTx", taoerr.TransientIO, err)
	}
	return nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return taoerr.New("db.Tx.Commit", taoerr.TransientIO, err)
	}
	return nil
}

// Rollback rolls back the transaction. It is a no-op if the transaction
// was already committed or rolled back.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return taoerr.New("db.Tx.Rollback", taoerr.TransientIO, err)
	}
	return nil
}
