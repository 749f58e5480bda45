package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder receives measurements from the ingestion and
// reconstruction paths. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	// RecordEventIngested counts one accepted callback event.
	RecordEventIngested(ctx context.Context, threadID, eventType string)

	// RecordBufferDrop counts one ring-buffer eviction.
	RecordBufferDrop(ctx context.Context, threadID string)

	// RecordSubscriberDrop counts one event dropped from a slow
	// subscriber's queue.
	RecordSubscriberDrop(ctx context.Context, threadID string)

	// RecordReconstruction records one trace reconstruction attempt
	// with its latency and outcome.
	RecordReconstruction(ctx context.Context, duration time.Duration, err error)

	// RecordDecodeError counts one blob that failed to decode.
	RecordDecodeError(ctx context.Context, encoding string)
}

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordEventIngested(context.Context, string, string)        {}
func (NoopMetrics) RecordBufferDrop(context.Context, string)                   {}
func (NoopMetrics) RecordSubscriberDrop(context.Context, string)               {}
func (NoopMetrics) RecordReconstruction(context.Context, time.Duration, error) {}
func (NoopMetrics) RecordDecodeError(context.Context, string)                  {}

// OTelMetrics records measurements through an OpenTelemetry meter.
type OTelMetrics struct {
	eventsIngested  metric.Int64Counter
	bufferDrops     metric.Int64Counter
	subscriberDrops metric.Int64Counter
	reconstructions metric.Int64Counter
	reconstructMs   metric.Float64Histogram
	decodeErrors    metric.Int64Counter
}

// NewOTelMetrics builds a MetricsRecorder on the given meter.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	eventsIngested, err := meter.Int64Counter("flowtrace.events.ingested",
		metric.WithDescription("Callback events accepted into thread buffers"),
	)
	if err != nil {
		return nil, err
	}
	bufferDrops, err := meter.Int64Counter("flowtrace.buffer.drops",
		metric.WithDescription("Events evicted from full thread buffers"),
	)
	if err != nil {
		return nil, err
	}
	subscriberDrops, err := meter.Int64Counter("flowtrace.stream.drops",
		metric.WithDescription("Events dropped from slow subscriber queues"),
	)
	if err != nil {
		return nil, err
	}
	reconstructions, err := meter.Int64Counter("flowtrace.reconstructions",
		metric.WithDescription("Trace reconstruction attempts"),
	)
	if err != nil {
		return nil, err
	}
	reconstructMs, err := meter.Float64Histogram("flowtrace.reconstruction.duration",
		metric.WithDescription("Trace reconstruction latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	decodeErrors, err := meter.Int64Counter("flowtrace.decode.errors",
		metric.WithDescription("Blobs that failed to decode"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelMetrics{
		eventsIngested:  eventsIngested,
		bufferDrops:     bufferDrops,
		subscriberDrops: subscriberDrops,
		reconstructions: reconstructions,
		reconstructMs:   reconstructMs,
		decodeErrors:    decodeErrors,
	}, nil
}

func (m *OTelMetrics) RecordEventIngested(ctx context.Context, threadID, eventType string) {
	m.eventsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("thread_id", threadID),
		attribute.String("event_type", eventType),
	))
}

func (m *OTelMetrics) RecordBufferDrop(ctx context.Context, threadID string) {
	m.bufferDrops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("thread_id", threadID),
	))
}

func (m *OTelMetrics) RecordSubscriberDrop(ctx context.Context, threadID string) {
	m.subscriberDrops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("thread_id", threadID),
	))
}

func (m *OTelMetrics) RecordReconstruction(ctx context.Context, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.reconstructions.Add(ctx, 1, attrs)
	m.reconstructMs.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
}

func (m *OTelMetrics) RecordDecodeError(ctx context.Context, encoding string) {
	m.decodeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("encoding", encoding),
	))
}
