package tao

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/taograph/internal/db"
	"github.com/dreamware/taograph/internal/idgen"
)

// MetricsDecorator records per-operation latency and outcome counts via
// github.com/prometheus/client_golang, the metrics library the rest of
// the storage-engine stack is built around.
type MetricsDecorator struct {
	inner Operations

	latency  *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewMetricsDecorator wraps inner and registers its collectors against
// reg. A nil reg registers against prometheus.DefaultRegisterer.
func NewMetricsDecorator(inner Operations, reg prometheus.Registerer) *MetricsDecorator {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	d := &MetricsDecorator{
		inner: inner,
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taograph",
			Subsystem: "tao",
			Name:      "operation_duration_seconds",
			Help:      "Latency of TAO core operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taograph",
			Subsystem: "tao",
			Name:      "operations_total",
			Help:      "Count of TAO core operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(d.latency, d.requests)
	return d
}

var _ Operations = (*MetricsDecorator)(nil)

func (d *MetricsDecorator) observe(op string, start time.Time, err error) {
	d.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.requests.WithLabelValues(op, outcome).Inc()
}

func (d *MetricsDecorator) GenerateID(ctx context.Context, ownerID *int64) (idgen.TaoId, error) {
	start := time.Now()
	id, err := d.inner.GenerateID(ctx, ownerID)
	d.observe("generate_id", start, err)
	return id, err
}

func (d *MetricsDecorator) GetObject(ctx context.Context, id idgen.TaoId) (*db.Object, error) {
	start := time.Now()
	obj, err := d.inner.GetObject(ctx, id)
	d.observe("get_object", start, err)
	return obj, err
}

func (d *MetricsDecorator) GetObjects(ctx context.Context, ids []idgen.TaoId, otype string) ([]db.Object, error) {
	start := time.Now()
	objs, err := d.inner.GetObjects(ctx, ids, otype)
	d.observe("get_objects", start, err)
	return objs, err
}

func (d *MetricsDecorator) CreateObject(ctx context.Context, id idgen.TaoId, otype string, data []byte) error {
	start := time.Now()
	err := d.inner.CreateObject(ctx, id, otype, data)
	d.observe("create_object", start, err)
	return err
}

func (d *MetricsDecorator) UpdateObject(ctx context.Context, id idgen.TaoId, data []byte) error {
	start := time.Now()
	err := d.inner.UpdateObject(ctx, id, data)
	d.observe("update_object", start, err)
	return err
}

func (d *MetricsDecorator) DeleteObject(ctx context.Context, id idgen.TaoId) (bool, error) {
	start := time.Now()
	deleted, err := d.inner.DeleteObject(ctx, id)
	d.observe("delete_object", start, err)
	return deleted, err
}

func (d *MetricsDecorator) AssocAdd(ctx context.Context, a db.Association) error {
	start := time.Now()
	err := d.inner.AssocAdd(ctx, a)
	d.observe("assoc_add", start, err)
	return err
}

func (d *MetricsDecorator) AssocDelete(ctx context.Context, id1 idgen.TaoId, atype string, id2 idgen.TaoId) (bool, error) {
	start := time.Now()
	deleted, err := d.inner.AssocDelete(ctx, id1, atype, id2)
	d.observe("assoc_delete", start, err)
	return deleted, err
}

func (d *MetricsDecorator) AssocGet(ctx context.Context, q db.AssocQuery) ([]db.Association, error) {
	start := time.Now()
	assocs, err := d.inner.AssocGet(ctx, q)
	d.observe("assoc_get", start, err)
	return assocs, err
}

func (d *MetricsDecorator) AssocCount(ctx context.Context, id1 idgen.TaoId, atype string) (uint64, error) {
	start := time.Now()
	count, err := d.inner.AssocCount(ctx, id1, atype)
	d.observe("assoc_count", start, err)
	return count, err
}

func (d *MetricsDecorator) ExecuteRawQuery(ctx context.Context, shardID int32, query string, args ...any) ([]db.Row, error) {
	start := time.Now()
	rows, err := d.inner.ExecuteRawQuery(ctx, shardID, query, args...)
	d.observe("execute_raw_query", start, err)
	return rows, err
}
