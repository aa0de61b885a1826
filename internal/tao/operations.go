// Package tao assembles the TAO core: a decorator chain over the query
// router that adds caching, write-ahead logging, metrics, and circuit
// breaking around the same Operations contract, mirroring the way the
// teacher repo's storage layer sits behind a single interface regardless
// of which concerns are wired in front of it.
package tao

import (
	"context"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
)

// Operations is the full read/write surface every layer of the decorator
// chain implements. Each decorator wraps another Operations and adds
// exactly one concern, so CircuitBreaker(Metrics(WAL(Cache(Base)))) type
// checks as an Operations itself.
type Operations interface {
	// GenerateID mints a new TaoId placed on ownerID's shard, or a
	// load-balanced healthy shard when ownerID is nil.
	GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error)

	GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error)
	GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error)
	CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error
	UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error
	DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error)

	AssocAdd(ctx context.Context, a db.Association) error
	AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error)
	AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error)
	AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error)

	// ExecuteRawQuery is the operational escape hatch of spec.md §6: an
	// arbitrary read-only statement against one shard.
	ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error)
}
