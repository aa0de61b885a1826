package tao

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/taograph/internal/idgen"
)

func TestMetricsDecorator_RecordsOkAndErrorOutcomes(t *testing.T) {
	inner := newFakeOps()
	reg := prometheus.NewRegistry()
	d := NewMetricsDecorator(inner, reg)

	require.NoError(t, d.CreateObject(context.Background(), idgen.TaoId(1), "ent_user", []byte("x")))
	_, err := d.GetObject(context.Background(), idgen.TaoId(999))
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(d.requests.WithLabelValues("create_object", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(d.requests.WithLabelValues("get_object", "error")))
}

func TestMetricsDecorator_ObservesLatencyForEveryCall(t *testing.T) {
	inner := newFakeOps()
	reg := prometheus.NewRegistry()
	d := NewMetricsDecorator(inner, reg)

	_, err := d.AssocCount(context.Background(), idgen.TaoId(1), "friend")
	require.NoError(t, err)

	sampleCount := testutil.CollectAndCount(d.latency)
	assert.Equal(t, 1, sampleCount)
}

func TestMetricsDecorator_RegistersUnderProvidedRegistererOnly(t *testing.T) {
	inner := newFakeOps()
	reg := prometheus.NewRegistry()
	_ = NewMetricsDecorator(inner, reg)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "taograph_tao_operation_duration_seconds")
	assert.Contains(t, names, "taograph_tao_operations_total")
}
