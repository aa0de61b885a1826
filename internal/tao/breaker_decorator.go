package tao

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// BreakerDecorator is the outermost layer: it trips a
// github.com/sony/gobreaker circuit breaker after the wrapped chain
// returns 5 consecutive failures, shedding load with a fast
// ServiceUnavailable instead of letting callers pile up on a struggling
// shard. One breaker instance guards the whole chain, matching design
// note §5's "breaker recovery 30s" default.
type BreakerDecorator struct {
	inner   Operations
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerDecorator wraps inner with a breaker that opens after 5
// consecutive failures and allows a half-open probe after recoveryTimeout.
func NewBreakerDecorator(inner Operations, recoveryTimeout time.Duration) *BreakerDecorator {
	settings := gobreaker.Settings{
		Name:    "tao-core",
		Timeout: recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerDecorator{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

var _ Operations = (*BreakerDecorator)(nil)

func guarded[T any](d *BreakerDecorator, fn func() (T, error)) (T, error) {
	result, err := d.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, taoerr.New("tao.BreakerDecorator", taoerr.ServiceUnavailable, err)
		}
		return zero, err
	}
	return result.(T), nil
}

func (d *BreakerDecorator) GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error) {
	return guarded(d, func() (idgen.TaoId, error) { return d.inner.GenerateID(ctx, ownerID) })
}

func (d *BreakerDecorator) GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error) {
	return guarded(d, func() (*db.Object, error) { return d.inner.GetObject(ctx, id) })
}

func (d *BreakerDecorator) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	return guarded(d, func() ([]db.Object, error) { return d.inner.GetObjects(ctx, ids, otype) })
}

func (d *BreakerDecorator) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	_, err := guarded(d, func() (struct{}, error) { return struct{}{}, d.inner.CreateObject(ctx, id, otype, data) })
	return err
}

func (d *BreakerDecorator) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	_, err := guarded(d, func() (struct{}, error) { return struct{}{}, d.inner.UpdateObject(ctx, id, data) })
	return err
}

func (d *BreakerDecorator) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	return guarded(d, func() (bool, error) { return d.inner.DeleteObject(ctx, id) })
}

func (d *BreakerDecorator) AssocAdd(ctx context.Context, a db.Association) error {
	_, err := guarded(d, func() (struct{}, error) { return struct{}{}, d.inner.AssocAdd(ctx, a) })
	return err
}

func (d *BreakerDecorator) AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	return guarded(d, func() (bool, error) { return d.inner.AssocDelete(ctx, id1, atype, id2) })
}

func (d *BreakerDecorator) AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error) {
	return guarded(d, func() ([]db.Association, error) { return d.inner.AssocGet(ctx, q) })
}

func (d *BreakerDecorator) AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	return guarded(d, func() (uint64, error) { return d.inner.AssocCount(ctx, id1, atype) })
}

func (d *BreakerDecorator) ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error) {
	return guarded(d, func() ([]db.Row, error) { return d.inner.ExecuteRawQuery(ctx, shardID, query, args...) })
}
