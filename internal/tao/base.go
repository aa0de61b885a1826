package tao

import (
	"context"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/router"
)

// Base is the innermost Operations implementation: it talks directly to
// the query router and has no caching, logging, or resilience behavior
// of its own.
type Base struct {
	router *router.Router
}

// NewBase constructs the base layer over r.
func NewBase(r *router.Router) *Base {
	return &Base{router: r}
}

var _ Operations = (*Base)(nil)

func (b *Base) GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error) {
	return b.router.GenerateTaoID(ownerID)
}

func (b *Base) GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error) {
	database, err := b.router.DatabaseForObject(id)
	if err != nil {
		return nil, err
	}
	return database.GetObject(ctx, id)
}

func (b *Base) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	return b.router.GetByIDAndType(ctx, ids, otype)
}

func (b *Base) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	database, err := b.router.DatabaseForObject(id)
	if err != nil {
		return err
	}
	return database.CreateObject(ctx, id, otype, data)
}

func (b *Base) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	database, err := b.router.DatabaseForObject(id)
	if err != nil {
		return err
	}
	return database.UpdateObject(ctx, id, data)
}

func (b *Base) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	database, err := b.router.DatabaseForObject(id)
	if err != nil {
		return false, err
	}
	return database.DeleteObject(ctx, id)
}

func (b *Base) AssocAdd(ctx context.Context, a db.Association) error {
	database, err := b.router.DatabaseForObject(a.ID1)
	if err != nil {
		return err
	}
	return database.CreateAssociation(ctx, a)
}

func (b *Base) AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	database, err := b.router.DatabaseForObject(id1)
	if err != nil {
		return false, err
	}
	return database.DeleteAssociation(ctx, id1, atype, id2)
}

func (b *Base) AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error) {
	database, err := b.router.DatabaseForObject(q.ID1)
	if err != nil {
		return nil, err
	}
	return database.GetAssociations(ctx, q)
}

func (b *Base) AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	database, err := b.router.DatabaseForObject(id1)
	if err != nil {
		return 0, err
	}
	return database.CountAssociations(ctx, id1, atype)
}

func (b *Base) ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error) {
	database, err := b.router.DatabaseForShard(shardID)
	if err != nil {
		return nil, err
	}
	return database.ExecuteQuery(ctx, query, args...)
}
