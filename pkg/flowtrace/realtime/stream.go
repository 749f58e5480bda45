package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/observability"
)

// DefaultQueueSize bounds each subscriber's live-event queue.
const DefaultQueueSize = 100

// Broadcaster fans events out to per-thread subscribers. Each
// subscriber gets its own bounded queue; a slow subscriber loses its
// own oldest queued events and never stalls publishers or peers.
type Broadcaster struct {
	mu        sync.RWMutex
	threads   map[string]map[string]*Subscription
	queueSize int
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithQueueSize sets the per-subscriber queue bound.
func WithQueueSize(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithBroadcasterLogger sets the logger. A nil logger disables logging.
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithBroadcasterMetrics sets the metrics recorder.
func WithBroadcasterMetrics(rec observability.MetricsRecorder) BroadcasterOption {
	return func(b *Broadcaster) {
		if rec != nil {
			b.metrics = rec
		}
	}
}

// NewBroadcaster builds a Broadcaster with the given options.
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		threads:   make(map[string]map[string]*Subscription),
		queueSize: DefaultQueueSize,
		metrics:   observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's view of a thread's event stream.
type Subscription struct {
	id       string
	threadID string
	ch       chan Event
	owner    *Broadcaster
	once     sync.Once
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// Events returns the subscriber's event channel. The channel is closed
// when the subscription is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unregisters the subscription and closes its channel. It is safe
// to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.owner.remove(s)
		close(s.ch)
		observability.LogUnsubscribe(s.owner.logger, s.threadID, s.id)
	})
}

// Subscribe registers a new subscriber for the thread. The backlog is
// queued ahead of any live event so the subscriber always sees
// buffered history first, oldest first.
func (b *Broadcaster) Subscribe(threadID string, backlog []Event) *Subscription {
	sub := &Subscription{
		id:       uuid.NewString(),
		threadID: threadID,
		ch:       make(chan Event, b.queueSize+len(backlog)),
		owner:    b,
	}
	for _, e := range backlog {
		sub.ch <- e
	}

	b.mu.Lock()
	subs, ok := b.threads[threadID]
	if !ok {
		subs = make(map[string]*Subscription)
		b.threads[threadID] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	observability.LogSubscribe(b.logger, threadID, sub.id, len(backlog))
	return sub
}

// Publish delivers the event to every subscriber of its thread. A full
// subscriber queue sheds its oldest entry to admit the new event; if
// contention defeats that, the new event is dropped for that subscriber
// instead. Either way only the slow subscriber is affected.
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.threads[e.ThreadID] {
		select {
		case sub.ch <- e:
			continue
		default:
		}
		// Queue full. Shed the oldest entry to make room, unless the
		// subscriber drained it first; then the retry may succeed
		// without losing anything.
		dropped := false
		select {
		case <-sub.ch:
			dropped = true
		default:
		}
		select {
		case sub.ch <- e:
		default:
			dropped = true
		}
		if dropped {
			b.metrics.RecordSubscriberDrop(context.Background(), e.ThreadID)
			observability.LogSubscriberDrop(b.logger, e.ThreadID, sub.id)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a thread.
func (b *Broadcaster) SubscriberCount(threadID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.threads[threadID])
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.threads[sub.threadID]
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.threads, sub.threadID)
	}
}
