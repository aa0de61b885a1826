package tao

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dreamware/taograph/internal/cache"
	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
)

const (
	objectTTL   = 10 * time.Minute
	assocListTTL = 2 * time.Minute
)

// CacheDecorator adds the two-tier read-through/write-invalidate cache of
// spec.md §4.4 in front of another Operations. Object reads are cached by
// ID; unfiltered association-list reads (no time range, no id2 filter)
// are cached by (id1, atype) since that's the shape the neighbor-
// expansion hot path actually issues. Any write invalidates the affected
// object's cache entries per spec.md §4.4's invalidation set.
type CacheDecorator struct {
	inner Operations
	cache *cache.Cache
}

// NewCacheDecorator wraps inner with c.
func NewCacheDecorator(inner Operations, c *cache.Cache) *CacheDecorator {
	return &CacheDecorator{inner: inner, cache: c}
}

var _ Operations = (*CacheDecorator)(nil)

func (d *CacheDecorator) GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error) {
	return d.inner.GenerateID(ctx, ownerID)
}

func (d *CacheDecorator) GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error) {
	key := cache.ObjectKey(id)
	if raw, ok := d.cache.Get(key); ok {
		var obj db.Object
		if err := cbor.Unmarshal(raw, &obj); err == nil {
			return &obj, nil
		}
	}

	obj, err := d.inner.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := cbor.Marshal(obj); err == nil {
		d.cache.Put(key, raw, objectTTL)
	}
	return obj, nil
}

// GetObjects fans out to the inner layer directly: a batch read spans
// potentially many cache keys with no single invalidation anchor, so it
// is left to the object cache's per-ID path on subsequent GetObject
// calls rather than cached here.
func (d *CacheDecorator) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	return d.inner.GetObjects(ctx, ids, otype)
}

func (d *CacheDecorator) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	if err := d.inner.CreateObject(ctx, id, otype, data); err != nil {
		return err
	}
	d.cache.InvalidateObject(int64(id))
	return nil
}

func (d *CacheDecorator) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	if err := d.inner.UpdateObject(ctx, id, data); err != nil {
		return err
	}
	d.cache.InvalidateObject(int64(id))
	return nil
}

func (d *CacheDecorator) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	deleted, err := d.inner.DeleteObject(ctx, id)
	if err != nil {
		return false, err
	}
	d.cache.InvalidateObject(int64(id))
	return deleted, nil
}

func (d *CacheDecorator) AssocAdd(ctx context.Context, a db.Association) error {
	if err := d.inner.AssocAdd(ctx, a); err != nil {
		return err
	}
	d.cache.InvalidateObject(int64(a.ID1))
	d.cache.InvalidateObject(int64(a.ID2))
	return nil
}

func (d *CacheDecorator) AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	deleted, err := d.inner.AssocDelete(ctx, id1, atype, id2)
	if err != nil {
		return false, err
	}
	d.cache.InvalidateObject(int64(id1))
	d.cache.InvalidateObject(int64(id2))
	return deleted, nil
}

func (d *CacheDecorator) AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error) {
	if !isUnfiltered(q) {
		return d.inner.AssocGet(ctx, q)
	}

	key := cache.AssocListKey(q.ID1, q.AType)
	if raw, ok := d.cache.Get(key); ok {
		var assocs []db.Association
		if err := cbor.Unmarshal(raw, &assocs); err == nil {
			return applyWindow(assocs, q), nil
		}
	}

	full := q
	full.Limit, full.Offset = 0, 0
	assocs, err := d.inner.AssocGet(ctx, full)
	if err != nil {
		return nil, err
	}
	if raw, err := cbor.Marshal(assocs); err == nil {
		d.cache.Put(key, raw, assocListTTL)
	}
	return applyWindow(assocs, q), nil
}

func (d *CacheDecorator) AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	return d.inner.AssocCount(ctx, id1, atype)
}

func (d *CacheDecorator) ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error) {
	return d.inner.ExecuteRawQuery(ctx, shardID, query, args...)
}

func isUnfiltered(q db.AssocQuery) bool {
	return len(q.ID2Set) == 0 && q.LowTime == nil && q.HighTime == nil
}

func applyWindow(assocs []db.Association, q db.AssocQuery) []db.Association {
	if q.Limit <= 0 {
		return assocs
	}
	start := q.Offset
	if start > len(assocs) {
		return nil
	}
	end := start + q.Limit
	if end > len(assocs) {
		end = len(assocs)
	}
	return assocs[start:end]
}
