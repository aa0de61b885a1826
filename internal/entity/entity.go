// Package entity is the thin typed boundary sitting on top of
// internal/tao: a schema registry/codegen layer would normally generate
// this code from type definitions, but no such generator is in scope
// here, so this package hand-writes the generic primitives the
// generated code would otherwise call. Every payload is encoded with
// the same CBOR codec (github.com/fxamacker/cbor/v2) internal/cache
// uses, since both need a stable, self-describing, schema-tolerant
// binary format and there is no reason to pick a second one.
package entity

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/tao"
	"github.com/dreamware/taograph/internal/taoerr"
)

// Entity is satisfied by every typed domain object stored through this
// package. EntityType names the otype row stored alongside the payload;
// ID returns whatever the entity's own ID field holds: none of the
// helpers below write the minted or loaded object ID into it.
type Entity interface {
	EntityType() string
	ID() idgen.TaoId
	Validate() error
}

func encode(e Entity) ([]byte, error) {
	b, err := cbor.Marshal(e)
	if err != nil {
		return nil, taoerr.New("entity.encode", taoerr.Serialization, err)
	}
	return b, nil
}

func decode(data []byte, out Entity) error {
	if err := cbor.Unmarshal(data, out); err != nil {
		return taoerr.New("entity.decode", taoerr.Serialization, err)
	}
	return nil
}

// New constructs a zero-value E, the way every generic helper below
// needs to materialize a fresh instance to decode into.
func New[E any]() E {
	var e E
	return e
}

// CreateTyped validates e, mints an ID placed on ownerID's shard (or a
// load-balanced shard if ownerID is nil), persists e's CBOR encoding
// under e.EntityType(), and returns the minted ID. e is not modified:
// the minted ID is only returned, not written into e, and the returned
// ID is the one actually stored.
func CreateTyped(ctx context.Context, ops tao.Operations, ownerID *int64, e Entity) (idgen.TaoId, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	id, err := ops.GenerateID(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	payload, err := encode(e)
	if err != nil {
		return 0, err
	}
	if err := ops.CreateObject(ctx, id, e.EntityType(), payload); err != nil {
		return 0, err
	}
	return id, nil
}

// GenNullable loads id as an E, returning (nil, nil) if no such object
// exists — the "might legitimately be absent" read.
func GenNullable[E any, PE interface {
	*E
	Entity
}](ctx context.Context, ops tao.Operations, id idgen.TaoId) (*E, error) {
	obj, err := ops.GetObject(ctx, id)
	if err != nil {
		if taoerr.KindOf(err) == taoerr.NotFound {
			return nil, nil
		}
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	e := New[E]()
	if err := decode(obj.Data, PE(&e)); err != nil {
		return nil, err
	}
	return &e, nil
}

// GenEnforce loads id as an E, turning a missing object into a
// taoerr.NotFound instead of a nil result — the "this had better exist"
// read used once a caller already knows id refers to an E.
func GenEnforce[E any, PE interface {
	*E
	Entity
}](ctx context.Context, ops tao.Operations, id idgen.TaoId) (*E, error) {
	e, err := GenNullable[E, PE](ctx, ops, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, taoerr.New("entity.GenEnforce", taoerr.NotFound, fmt.Errorf("no entity %d", id))
	}
	return e, nil
}

// Update validates e and overwrites id's stored payload with e's CBOR
// encoding.
func Update(ctx context.Context, ops tao.Operations, id idgen.TaoId, e Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := encode(e)
	if err != nil {
		return err
	}
	return ops.UpdateObject(ctx, id, payload)
}

// Delete removes id, reporting whether a row actually existed to delete.
func Delete(ctx context.Context, ops tao.Operations, id idgen.TaoId) (bool, error) {
	return ops.DeleteObject(ctx, id)
}

// Exists reports whether id currently resolves to an object, without
// paying to decode its payload.
func Exists(ctx context.Context, ops tao.Operations, id idgen.TaoId) (bool, error) {
	obj, err := ops.GetObject(ctx, id)
	if err != nil {
		if taoerr.KindOf(err) == taoerr.NotFound {
			return false, nil
		}
		return false, err
	}
	return obj != nil, nil
}

// LoadMany loads every id in ids as an E, preserving input order and
// placing nil at any index whose object is missing or of a different
// type. The underlying router fan-out does not preserve order
// (internal/router's GetByIDAndType is explicit about that), so LoadMany
// re-zips the router's results back onto the caller's requested order by
// ID.
func LoadMany[E any, PE interface {
	*E
	Entity
}](ctx context.Context, ops tao.Operations, ids []idgen.TaoId, otype string) ([]*E, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	objs, err := ops.GetObjects(ctx, ids, otype)
	if err != nil {
		return nil, err
	}

	byID := make(map[idgen.TaoId]db.Object, len(objs))
	for _, o := range objs {
		byID[o.ID] = o
	}

	out := make([]*E, len(ids))
	for i, id := range ids {
		obj, ok := byID[id]
		if !ok {
			continue
		}
		e := New[E]()
		if err := decode(obj.Data, PE(&e)); err != nil {
			return nil, err
		}
		out[i] = &e
	}
	return out, nil
}

// GetNeighborIDs returns the id2 of every association rooted at id of
// type atype, newest first, without decoding the far side — the
// traversal primitive LoadMany composes with below.
func GetNeighborIDs(ctx context.Context, ops tao.Operations, id idgen.TaoId, atype string, limit, offset int) ([]idgen.TaoId, error) {
	assocs, err := ops.AssocGet(ctx, db.AssocQuery{ID1: id, AType: atype, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	out := make([]idgen.TaoId, len(assocs))
	for i, a := range assocs {
		out[i] = a.ID2
	}
	return out, nil
}

// LoadNeighbors walks id's atype edges and loads the far endpoint of each
// as an E in one shot: GetNeighborIDs followed by LoadMany, the thin
// composition spec.md's entity framework calls a "neighbor expansion."
func LoadNeighbors[E any, PE interface {
	*E
	Entity
}](ctx context.Context, ops tao.Operations, id idgen.TaoId, atype, neighborOType string, limit, offset int) ([]*E, error) {
	ids, err := GetNeighborIDs(ctx, ops, id, atype, limit, offset)
	if err != nil {
		return nil, err
	}
	return LoadMany[E, PE](ctx, ops, ids, neighborOType)
}
