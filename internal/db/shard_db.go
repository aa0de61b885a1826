package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// ShardDB is the relational store for exactly one shard. It owns one
// embedded sqlite database file (or an in-memory one for tests) and
// exposes the object/association/count operations of spec.md §4.3.
type ShardDB struct {
	db             *sqlx.DB
	shardID        int32
	acquireTimeout time.Duration
}

// Open opens (creating if absent) the sqlite file at dsn and applies the
// schema. maxConns/acquireTimeout mirror the DB_MAX_CONNECTIONS and
// DB_ACQUIRE_TIMEOUT_SECS configuration keys.
func Open(shardID int32, dsn string, maxConns int, acquireTimeout time.Duration) (*ShardDB, error) {
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, taoerr.New("db.Open", taoerr.TransientIO, err)
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, taoerr.New("db.Open", taoerr.TransientIO, fmt.Errorf("applying schema: %w", err))
	}

	return &ShardDB{db: conn, shardID: shardID, acquireTimeout: acquireTimeout}, nil
}

// Close releases the underlying connection pool.
func (s *ShardDB) Close() error { return s.db.Close() }

// ShardID returns the shard this store belongs to.
func (s *ShardDB) ShardID() int32 { return s.shardID }

func (s *ShardDB) withAcquireTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.acquireTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.acquireTimeout)
}

// --- objects ---------------------------------------------------------

type objectRow struct {
	ID          int64  `db:"id"`
	OType       string `db:"otype"`
	TimeCreated int64  `db:"time_created"`
	TimeUpdated int64  `db:"time_updated"`
	Data        []byte `db:"data"`
	Version     int64  `db:"version"`
}

func (r objectRow) toObject() Object {
	return Object{
		ID:          idgen.TaoId(r.ID),
		OType:       r.OType,
		Data:        r.Data,
		CreatedTime: time.UnixMilli(r.TimeCreated),
		UpdatedTime: time.UnixMilli(r.TimeUpdated),
		Version:     r.Version,
	}
}

// GetObject fetches a single object by ID. Returns taoerr.NotFound
// wrapping taoerr.ErrObjectNotFound if absent.
func (s *ShardDB) GetObject(ctx context.Context, id idgen.TaoId) (*Object, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	var row objectRow
	err := s.db.GetContext(ctx, &row, `SELECT id, otype, time_created, time_updated, data, version FROM objects WHERE id = ?`, int64(id))
	if err == sql.ErrNoRows {
		return nil, taoerr.New("db.GetObject", taoerr.NotFound, taoerr.ErrObjectNotFound)
	}
	if err != nil {
		return nil, taoerr.New("db.GetObject", taoerr.TransientIO, err)
	}
	obj := row.toObject()
	return &obj, nil
}

// GetObjects fetches objects by ID, optionally filtered to otype (empty
// string means no filter). Missing IDs are simply absent from the
// result; order is not preserved (callers zip by ID).
func (s *ShardDB) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, int64(id))
	}
	query := fmt.Sprintf(`SELECT id, otype, time_created, time_updated, data, version FROM objects WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if otype != "" {
		query += " AND otype = ?"
		args = append(args, otype)
	}

	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, taoerr.New("db.GetObjects", taoerr.TransientIO, err)
	}
	out := make([]Object, len(rows))
	for i, r := range rows {
		out[i] = r.toObject()
	}
	return out, nil
}

// CreateObject inserts a new object with version 1 and
// created_time == updated_time. Fails with taoerr.Conflict wrapping
// taoerr.ErrObjectExists if id already exists.
func (s *ShardDB) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO objects (id, otype, time_created, time_updated, data, version) VALUES (?, ?, ?, ?, ?, 1)`,
		int64(id), otype, now, now, data)
	if err != nil {
		return taoerr.New("db.CreateObject", taoerr.TransientIO, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return taoerr.New("db.CreateObject", taoerr.Conflict, taoerr.ErrObjectExists)
	}
	return nil
}

// UpdateObject replaces data and increments version. Fails with
// taoerr.NotFound if id is absent.
func (s *ShardDB) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET data = ?, version = version + 1, time_updated = ? WHERE id = ?`,
		data, time.Now().UnixMilli(), int64(id))
	if err != nil {
		return taoerr.New("db.UpdateObject", taoerr.TransientIO, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return taoerr.New("db.UpdateObject", taoerr.NotFound, taoerr.ErrObjectNotFound)
	}
	return nil
}

// DeleteObject removes an object, reporting whether a row was deleted.
func (s *ShardDB) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, int64(id))
	if err != nil {
		return false, taoerr.New("db.DeleteObject", taoerr.TransientIO, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ObjectExists reports whether id is present.
func (s *ShardDB) ObjectExists(ctx context.Context, id idgen.TaoId) (bool, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM objects WHERE id = ?`, int64(id))
	if err != nil {
		return false, taoerr.New("db.ObjectExists", taoerr.TransientIO, err)
	}
	return count > 0, nil
}

// --- associations ------------------------------------------------------

type assocRow struct {
	ID1         int64  `db:"id1"`
	AType       string `db:"atype"`
	ID2         int64  `db:"id2"`
	TimeCreated int64  `db:"time_created"`
	Data        []byte `db:"data"`
}

func (r assocRow) toAssociation() Association {
	return Association{
		ID1:   idgen.TaoId(r.ID1),
		AType: r.AType,
		ID2:   idgen.TaoId(r.ID2),
		Time:  time.UnixMilli(r.TimeCreated),
		Data:  r.Data,
	}
}

// GetAssociations runs an AssocQuery, returning rows newest-first.
func (s *ShardDB) GetAssociations(ctx context.Context, q AssocQuery) ([]Association, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	query := `SELECT id1, atype, id2, time_created, data FROM associations WHERE id1 = ? AND atype = ?`
	args := []any{int64(q.ID1), q.AType}

	if len(q.ID2Set) > 0 {
		placeholders := make([]string, len(q.ID2Set))
		for i, id2 := range q.ID2Set {
			placeholders[i] = "?"
			args = append(args, int64(id2))
		}
		query += fmt.Sprintf(" AND id2 IN (%s)", strings.Join(placeholders, ","))
	}
	if q.LowTime != nil {
		query += " AND time_created >= ?"
		args = append(args, q.LowTime.UnixMilli())
	}
	if q.HighTime != nil {
		query += " AND time_created <= ?"
		args = append(args, q.HighTime.UnixMilli())
	}
	query += " ORDER BY time_created DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
		if q.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, q.Offset)
		}
	}

	var rows []assocRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, taoerr.New("db.GetAssociations", taoerr.TransientIO, err)
	}
	out := make([]Association, len(rows))
	for i, r := range rows {
		out[i] = r.toAssociation()
	}
	return out, nil
}

// CreateAssociation inserts an association idempotently by
// (id1, atype, id2), updating the association_counts index in the same
// transaction only when a row was actually inserted. This is the fix for
// the count-drift open question in spec.md §9: the count update is
// conditioned on the insert's "row actually added" flag, so a retried
// insert of an association that already landed does not double-count.
func (s *ShardDB) CreateAssociation(ctx context.Context, a Association) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return taoerr.New("db.CreateAssociation", taoerr.TransientIO, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO associations (id1, atype, id2, time_created, data) VALUES (?, ?, ?, ?, ?)`,
		int64(a.ID1), a.AType, int64(a.ID2), a.Time.UnixMilli(), a.Data)
	if err != nil {
		return taoerr.New("db.CreateAssociation", taoerr.TransientIO, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := bumpCount(ctx, tx, a.ID1, a.AType, 1); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return taoerr.New("db.CreateAssociation", taoerr.TransientIO, err)
	}
	return nil
}

// DeleteAssociation removes an association, decrementing the count index
// in the same transaction only if a row was actually removed.
func (s *ShardDB) DeleteAssociation(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, taoerr.New("db.DeleteAssociation", taoerr.TransientIO, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM associations WHERE id1 = ? AND atype = ? AND id2 = ?`,
		int64(id1), atype, int64(id2))
	if err != nil {
		return false, taoerr.New("db.DeleteAssociation", taoerr.TransientIO, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := bumpCount(ctx, tx, id1, atype, -1); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, taoerr.New("db.DeleteAssociation", taoerr.TransientIO, err)
	}
	return n > 0, nil
}

// bumpCount adjusts (or creates) the association_counts row for
// (id, atype) by delta, clamped at zero so retried decrements on an
// already-zero count never go negative. It runs as a plain read-modify-
// write under the caller's transaction: SQLite's single-writer model
// means this is race-free as long as it stays inside the same
// transaction as the row insert/delete it accompanies, which is exactly
// how CreateAssociation/DeleteAssociation call it.
func bumpCount(ctx context.Context, tx *sqlx.Tx, id idgen.TaoId, atype string, delta int64) error {
	now := time.Now().UnixMilli()
	var current int64
	err := tx.GetContext(ctx, &current, `SELECT count FROM association_counts WHERE id = ? AND atype = ?`, int64(id), atype)
	if err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return taoerr.New("db.bumpCount", taoerr.TransientIO, err)
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO association_counts (id, atype, count, updated_time) VALUES (?, ?, ?, ?)
		ON CONFLICT(id, atype) DO UPDATE SET count = excluded.count, updated_time = excluded.updated_time`,
		int64(id), atype, next, now)
	if err != nil {
		return taoerr.New("db.bumpCount", taoerr.TransientIO, err)
	}
	return nil
}

// CountAssociations reads the maintained count index for (id1, atype).
func (s *ShardDB) CountAssociations(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT count FROM association_counts WHERE id = ? AND atype = ?`, int64(id1), atype)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, taoerr.New("db.CountAssociations", taoerr.TransientIO, err)
	}
	return uint64(count), nil
}

// --- administrative scans & escape hatch --------------------------------

// GetAllObjectsFromShard returns every object in this shard, for graph
// export tooling.
func (s *ShardDB) GetAllObjectsFromShard(ctx context.Context) ([]Object, error) {
	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, otype, time_created, time_updated, data, version FROM objects`); err != nil {
		return nil, taoerr.New("db.GetAllObjectsFromShard", taoerr.TransientIO, err)
	}
	out := make([]Object, len(rows))
	for i, r := range rows {
		out[i] = r.toObject()
	}
	return out, nil
}

// GetAllAssociationsFromShard returns every association in this shard.
func (s *ShardDB) GetAllAssociationsFromShard(ctx context.Context) ([]Association, error) {
	var rows []assocRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id1, atype, id2, time_created, data FROM associations`); err != nil {
		return nil, taoerr.New("db.GetAllAssociationsFromShard", taoerr.TransientIO, err)
	}
	out := make([]Association, len(rows))
	for i, r := range rows {
		out[i] = r.toAssociation()
	}
	return out, nil
}

// ExecuteQuery is the operational escape hatch: it runs an arbitrary
// read-only SQL statement and returns rows as attribute maps. It is not
// part of the steady-state contract and should be reserved for
// operational tooling, not hot-path code.
func (s *ShardDB) ExecuteQuery(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, taoerr.New("db.ExecuteQuery", taoerr.TransientIO, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		raw := make(map[string]any)
		if err := rows.MapScan(raw); err != nil {
			return nil, taoerr.New("db.ExecuteQuery", taoerr.TransientIO, err)
		}
		row := make(Row, len(raw))
		for k, v := range raw {
			row[k] = fmt.Sprintf("%v", v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
