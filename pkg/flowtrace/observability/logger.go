// Package observability provides structured logging and metrics for
// flowtrace.
//
// Logging uses slog (Go stdlib); metrics use OpenTelemetry. Both are
// opt-in: every helper tolerates a nil logger, and NoopMetrics satisfies
// MetricsRecorder when metrics are disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying thread context.
func EnrichLogger(logger *slog.Logger, threadID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("thread_id", threadID))
}

// LogEventIngested logs one accepted callback event.
func LogEventIngested(logger *slog.Logger, threadID, runID, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("event ingested",
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.String("event_type", eventType),
	)
}

// LogBufferDrop logs a ring-buffer eviction. Eviction is the accepted
// lossy policy, so this is informational, not an error.
func LogBufferDrop(logger *slog.Logger, threadID string, dropped uint64) {
	if logger == nil {
		return
	}
	logger.Warn("buffer full, oldest event evicted",
		slog.String("thread_id", threadID),
		slog.Uint64("total_dropped", dropped),
	)
}

// LogSubscriberDrop logs a per-subscriber queue overflow.
func LogSubscriberDrop(logger *slog.Logger, threadID, subscriberID string) {
	if logger == nil {
		return
	}
	logger.Warn("slow subscriber, oldest queued event dropped",
		slog.String("thread_id", threadID),
		slog.String("subscriber_id", subscriberID),
	)
}

// LogSubscribe logs a new stream subscription.
func LogSubscribe(logger *slog.Logger, threadID, subscriberID string, backlog int) {
	if logger == nil {
		return
	}
	logger.Info("stream subscriber connected",
		slog.String("thread_id", threadID),
		slog.String("subscriber_id", subscriberID),
		slog.Int("backlog_events", backlog),
	)
}

// LogUnsubscribe logs a released stream subscription.
func LogUnsubscribe(logger *slog.Logger, threadID, subscriberID string) {
	if logger == nil {
		return
	}
	logger.Info("stream subscriber disconnected",
		slog.String("thread_id", threadID),
		slog.String("subscriber_id", subscriberID),
	)
}

// LogBufferEvicted logs an idle buffer being reclaimed.
func LogBufferEvicted(logger *slog.Logger, threadID string, idle time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("idle thread buffer evicted",
		slog.String("thread_id", threadID),
		slog.Duration("idle", idle),
	)
}

// LogTraceBuilt logs a completed reconstruction.
func LogTraceBuilt(logger *slog.Logger, threadID, checkpointID string, nodes int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("trace reconstructed",
		slog.String("thread_id", threadID),
		slog.String("checkpoint_id", checkpointID),
		slog.Int("nodes", nodes),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// The returned function yields the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000.0
	}
}
