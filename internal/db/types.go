// Package db implements the per-shard relational Database Port: objects,
// associations, and the association-count index, plus transactions and
// an operational query escape hatch. Each shard owns one *ShardDB backed
// by an embedded modernc.org/sqlite file, accessed through
// github.com/jmoiron/sqlx — the same sqlx-over-database/sql idiom the
// uber/cadence example (present in the retrieval pack's manifests) uses
// for its SQL persistence layer.
package db

import (
	"time"

	"github.com/dreamware/taograph/internal/idgen"
)

// Object is the spec's {id, otype, data, created_time, updated_time,
// version} record.
type Object struct {
	ID          idgen.TaoId
	OType       string
	Data        []byte
	CreatedTime time.Time
	UpdatedTime time.Time
	Version     int64
}

// Association is the spec's {id1, atype, id2, time, data?} directed edge.
type Association struct {
	ID1   idgen.TaoId
	AType string
	ID2   idgen.TaoId
	Time  time.Time
	Data  []byte
}

// AssocQuery selects associations starting at ID1 of type AType, newest
// first, optionally filtered by a specific ID2 set and/or time range.
type AssocQuery struct {
	ID1      idgen.TaoId
	AType    string
	ID2Set   []idgen.TaoId
	LowTime  *time.Time
	HighTime *time.Time
	Limit    int
	Offset   int
}

// Row is one record returned by ExecuteQuery's operational escape hatch.
type Row map[string]string
