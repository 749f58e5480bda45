package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/observability"
)

// Ingestor is the entry point of the realtime pipeline. For each
// inbound callback it resolves the thread id, stamps the timestamp,
// pairs end events with their start events to compute durations,
// appends to the thread buffer, and publishes to live subscribers.
//
// Append and publish happen under a per-thread lock so subscribers see
// events in exactly the order they were buffered, and a fresh
// subscription never misses or duplicates an event between backlog and
// live delivery. Threads never contend with each other.
type Ingestor struct {
	resolver *Resolver
	manager  *Manager
	streams  *Broadcaster

	startMu sync.Mutex
	starts  map[string]time.Time // runID -> start timestamp

	lockMu  sync.Mutex
	threads map[string]*sync.Mutex

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	now     func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestorLogger sets the logger. A nil logger disables logging.
func WithIngestorLogger(logger *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		i.logger = logger
	}
}

// WithIngestorMetrics sets the metrics recorder.
func WithIngestorMetrics(rec observability.MetricsRecorder) IngestorOption {
	return func(i *Ingestor) {
		if rec != nil {
			i.metrics = rec
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIngestor builds an Ingestor over the given resolver, buffer
// manager, and broadcaster.
func NewIngestor(resolver *Resolver, manager *Manager, streams *Broadcaster, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		resolver: resolver,
		manager:  manager,
		streams:  streams,
		starts:   make(map[string]time.Time),
		threads:  make(map[string]*sync.Mutex),
		metrics:  observability.NoopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest accepts one callback event and returns it as stored, with
// thread id, timestamp, sequence, and duration filled in. Ingest never
// fails: an event that resolves to no thread lands in a derived one.
func (i *Ingestor) Ingest(ctx context.Context, e Event, cc CallContext) Event {
	if e.ThreadID == "" {
		if cc.RunID == "" {
			cc.RunID = e.RunID
		}
		e.ThreadID = i.resolver.Resolve(cc)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = i.now()
	}

	switch {
	case e.IsStart():
		i.recordStart(e.RunID, e.Timestamp)
	case e.IsEnd() && e.DurationMs == nil:
		if start, ok := i.takeStart(e.RunID); ok {
			ms := float64(e.Timestamp.Sub(start).Microseconds()) / 1000.0
			e.DurationMs = &ms
		}
		// No matching start: the span opened before we were
		// listening, so the duration stays unset.
	}

	mu := i.threadLock(e.ThreadID)
	mu.Lock()
	stamped := i.manager.Append(ctx, e)
	i.streams.Publish(stamped)
	mu.Unlock()

	i.metrics.RecordEventIngested(ctx, stamped.ThreadID, stamped.Type)
	observability.LogEventIngested(i.logger, stamped.ThreadID, stamped.RunID, stamped.Type)
	return stamped
}

// Subscribe opens a live stream over the thread. The subscriber
// receives the thread's buffered backlog first, then live events, with
// no gap and no duplicate at the boundary.
func (i *Ingestor) Subscribe(threadID string) *Subscription {
	mu := i.threadLock(threadID)
	mu.Lock()
	defer mu.Unlock()
	backlog := i.manager.Snapshot(threadID)
	return i.streams.Subscribe(threadID, backlog)
}

// Clear drops the thread's buffered events. Live subscriptions stay
// open and keep receiving new events.
func (i *Ingestor) Clear(threadID string) {
	mu := i.threadLock(threadID)
	mu.Lock()
	defer mu.Unlock()
	i.manager.Clear(threadID)
}

func (i *Ingestor) recordStart(runID string, ts time.Time) {
	if runID == "" {
		return
	}
	i.startMu.Lock()
	defer i.startMu.Unlock()
	i.starts[runID] = ts
}

func (i *Ingestor) takeStart(runID string) (time.Time, bool) {
	if runID == "" {
		return time.Time{}, false
	}
	i.startMu.Lock()
	defer i.startMu.Unlock()
	ts, ok := i.starts[runID]
	if ok {
		delete(i.starts, runID)
	}
	return ts, ok
}

// Run reclaims idle pipeline state on a fixed interval until ctx is
// cancelled: idle buffers, their thread locks, and start timestamps of
// runs that never produced an end event.
func (i *Ingestor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			i.sweep(now)
		}
	}
}

func (i *Ingestor) sweep(now time.Time) {
	for _, threadID := range i.manager.EvictIdle(now) {
		i.releaseThreadLock(threadID)
	}
	i.pruneStarts(now, i.manager.IdleTTL())
}

func (i *Ingestor) releaseThreadLock(threadID string) {
	i.lockMu.Lock()
	defer i.lockMu.Unlock()
	delete(i.threads, threadID)
}

// pruneStarts drops start timestamps older than maxAge. A run whose
// end arrives after that loses only its duration.
func (i *Ingestor) pruneStarts(now time.Time, maxAge time.Duration) {
	i.startMu.Lock()
	defer i.startMu.Unlock()
	for runID, ts := range i.starts {
		if now.Sub(ts) >= maxAge {
			delete(i.starts, runID)
		}
	}
}

func (i *Ingestor) threadLock(threadID string) *sync.Mutex {
	i.lockMu.Lock()
	defer i.lockMu.Unlock()
	mu, ok := i.threads[threadID]
	if !ok {
		mu = &sync.Mutex{}
		i.threads[threadID] = mu
	}
	return mu
}
