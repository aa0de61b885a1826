package tao

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// fakeOps is a minimal in-memory Operations double used to test decorator
// behavior in isolation from the router/db stack.
type fakeOps struct {
	objects map[idgen.TaoId]db.Object
	assocs  map[string][]db.Association

	getObjectCalls int32
	assocGetCalls  int32
	failNextWrite  error
}

func newFakeOps() *fakeOps {
	return &fakeOps{objects: make(map[idgen.TaoId]db.Object), assocs: make(map[string][]db.Association)}
}

var _ Operations = (*fakeOps)(nil)

func (f *fakeOps) GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error) {
	return idgen.TaoId(1), nil
}

func (f *fakeOps) GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error) {
	atomic.AddInt32(&f.getObjectCalls, 1)
	obj, ok := f.objects[id]
	if !ok {
		return nil, taoerr.New("fakeOps.GetObject", taoerr.NotFound, taoerr.ErrObjectNotFound)
	}
	return &obj, nil
}

func (f *fakeOps) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	var out []db.Object
	for _, id := range ids {
		if obj, ok := f.objects[id]; ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeOps) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	if f.failNextWrite != nil {
		err := f.failNextWrite
		f.failNextWrite = nil
		return err
	}
	f.objects[id] = db.Object{ID: id, OType: otype, Data: data, Version: 1}
	return nil
}

func (f *fakeOps) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	obj, ok := f.objects[id]
	if !ok {
		return taoerr.New("fakeOps.UpdateObject", taoerr.NotFound, taoerr.ErrObjectNotFound)
	}
	obj.Data = data
	obj.Version++
	f.objects[id] = obj
	return nil
}

func (f *fakeOps) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	_, ok := f.objects[id]
	delete(f.objects, id)
	return ok, nil
}

func (f *fakeOps) assocKey(id1 idgen.TaoId, atype string) string {
	return fmt.Sprintf("%s|%d", atype, id1)
}

func (f *fakeOps) AssocAdd(ctx context.Context, a db.Association) error {
	key := f.assocKey(a.ID1, a.AType)
	f.assocs[key] = append(f.assocs[key], a)
	return nil
}

func (f *fakeOps) AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	key := f.assocKey(id1, atype)
	list := f.assocs[key]
	for i, a := range list {
		if a.ID2 == id2 {
			f.assocs[key] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOps) AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error) {
	atomic.AddInt32(&f.assocGetCalls, 1)
	return f.assocs[f.assocKey(q.ID1, q.AType)], nil
}

func (f *fakeOps) AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	return uint64(len(f.assocs[f.assocKey(id1, atype)])), nil
}

func (f *fakeOps) ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error) {
	return nil, nil
}
