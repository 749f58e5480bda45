package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNoopMetricsIsSafe(t *testing.T) {
	ctx := context.Background()
	var m NoopMetrics
	m.RecordEventIngested(ctx, "t1", "llm_start")
	m.RecordBufferDrop(ctx, "t1")
	m.RecordSubscriberDrop(ctx, "t1")
	m.RecordReconstruction(ctx, time.Millisecond, nil)
	m.RecordDecodeError(ctx, "json")
}

func TestOTelMetricsRecords(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	rec, err := NewOTelMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	rec.RecordEventIngested(ctx, "t1", "llm_start")
	rec.RecordEventIngested(ctx, "t1", "llm_end")
	rec.RecordBufferDrop(ctx, "t1")
	rec.RecordReconstruction(ctx, 5*time.Millisecond, nil)
	rec.RecordReconstruction(ctx, time.Millisecond, errors.New("boom"))
	rec.RecordDecodeError(ctx, "msgpack")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}
	assert.Contains(t, byName, "flowtrace.events.ingested")
	assert.Contains(t, byName, "flowtrace.buffer.drops")
	assert.Contains(t, byName, "flowtrace.reconstructions")
	assert.Contains(t, byName, "flowtrace.reconstruction.duration")
	assert.Contains(t, byName, "flowtrace.decode.errors")

	sum, ok := byName["flowtrace.events.ingested"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 4.0)
}
