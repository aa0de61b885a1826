// Package wal implements the durable write-ahead log of spec.md §4.7: it
// records multi-shard write intents before execution, persists status
// transitions to an append-only log and index, and drives a retry queue
// with exponential backoff. File I/O goes through
// github.com/spf13/afero so the log/index files are exercised against an
// in-memory filesystem in tests and a real OS filesystem in production.
package wal

import (
	"context"
	"time"

	"github.com/dreamware/taograph/internal/idgen"
)

// Status is the WAL entry's lifecycle state, following the one-way
// transition diagram of spec.md §4.7 (Failed→Pending on retry enqueue is
// the sole backward edge).
type Status string

const (
	Pending     Status = "pending"
	Executing   Status = "executing"
	Committed   Status = "committed"
	Failed      Status = "failed"
	Aborted     Status = "aborted"
	Compensated Status = "compensated"
)

func (s Status) Terminal() bool {
	return s == Committed || s == Aborted || s == Compensated
}

// OpType enumerates the five operation kinds spec.md §4.7 names.
type OpType string

const (
	OpInsertObject      OpType = "insert_object"
	OpUpdateObject      OpType = "update_object"
	OpDeleteObject      OpType = "delete_object"
	OpInsertAssociation OpType = "insert_association"
	OpDeleteAssociation OpType = "delete_association"
)

// Operation is one durable write intent. A single struct (rather than a
// polymorphic union) keeps JSON encoding straightforward for the
// newline-delimited log; unused fields for a given Type are simply zero.
type Operation struct {
	Type OpType `json:"type"`

	// Object-shaped fields (InsertObject/UpdateObject/DeleteObject).
	ObjectID idgen.TaoId `json:"object_id,omitempty"`
	OType    string      `json:"otype,omitempty"`
	Data     []byte      `json:"data,omitempty"`

	// Association-shaped fields (InsertAssociation/DeleteAssociation).
	ID1   idgen.TaoId `json:"id1,omitempty"`
	AType string      `json:"atype,omitempty"`
	ID2   idgen.TaoId `json:"id2,omitempty"`
	Time  time.Time   `json:"time,omitempty"`
}

// ShardID returns the shard that owns this operation: an object's own
// shard for object ops, or id1's shard for association ops (associations
// live on id1's shard).
func (op Operation) ShardID() int32 {
	switch op.Type {
	case OpInsertAssociation, OpDeleteAssociation:
		return idgen.ShardOf(op.ID1)
	default:
		return idgen.ShardOf(op.ObjectID)
	}
}

// Invert returns the compensating operation for op, used by the
// consistency manager to undo a partially-committed transaction.
// InsertAssociation inverts to DeleteAssociation and vice versa;
// Update/Delete operations have no safe automatic inverse and Invert
// reports ok=false for them (spec.md §4.8: "best-effort — log as
// un-compensatable").
func (op Operation) Invert() (inverted Operation, ok bool) {
	switch op.Type {
	case OpInsertAssociation:
		return Operation{Type: OpDeleteAssociation, ID1: op.ID1, AType: op.AType, ID2: op.ID2}, true
	case OpDeleteAssociation:
		return Operation{Type: OpInsertAssociation, ID1: op.ID1, AType: op.AType, ID2: op.ID2, Time: time.Now()}, true
	default:
		return Operation{}, false
	}
}

// FailedOp records one operation's index and error within a transaction.
type FailedOp struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Entry is the spec's pending-transaction (WAL entry) record.
type Entry struct {
	TxnID               string     `json:"txn_id"`
	Operations          []Operation `json:"operations"`
	Status              Status     `json:"status"`
	RetryCount          int        `json:"retry_count"`
	CreatedAt           time.Time  `json:"created_at"`
	LastAttemptAt       time.Time  `json:"last_attempt_at"`
	CompletedOperations []int      `json:"completed_operations"`
	FailedOperations    []FailedOp `json:"failed_operations"`
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Operations = append([]Operation(nil), e.Operations...)
	cp.CompletedOperations = append([]int(nil), e.CompletedOperations...)
	cp.FailedOperations = append([]FailedOp(nil), e.FailedOperations...)
	return &cp
}

// Stats summarizes the in-memory index by status, for monitoring.
type Stats struct {
	Pending     int
	Executing   int
	Committed   int
	Failed      int
	Aborted     int
	Compensated int
}

// Executor applies a single operation to storage. The router-backed
// implementation lives in internal/tao; wal depends only on this
// interface so it never imports the decorator chain.
type Executor interface {
	Execute(ctx context.Context, op Operation) error
}
