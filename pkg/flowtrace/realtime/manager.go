package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/observability"
)

// DefaultIdleTTL is how long a thread buffer may sit without appends
// before the janitor reclaims it.
const DefaultIdleTTL = 30 * time.Minute

// Manager owns the per-thread event buffers. Buffers are created on the
// first event for a thread and reclaimed after sitting idle.
type Manager struct {
	mu       sync.RWMutex
	buffers  map[string]*Buffer
	capacity int
	idleTTL  time.Duration
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBufferCapacity sets the per-thread ring capacity.
func WithBufferCapacity(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithIdleTTL sets how long an untouched buffer survives.
func WithIdleTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.idleTTL = ttl
		}
	}
}

// WithManagerLogger sets the logger. A nil logger disables logging.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the metrics recorder.
func WithManagerMetrics(rec observability.MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		if rec != nil {
			m.metrics = rec
		}
	}
}

// NewManager builds a Manager with the given options.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		buffers:  make(map[string]*Buffer),
		capacity: DefaultBufferCapacity,
		idleTTL:  DefaultIdleTTL,
		metrics:  observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Append stores the event in its thread's buffer, creating the buffer
// if this is the thread's first event. It returns the stamped event.
func (m *Manager) Append(ctx context.Context, e Event) Event {
	buf := m.buffer(e.ThreadID)
	stamped, evicted := buf.Append(e)
	if evicted {
		m.metrics.RecordBufferDrop(ctx, e.ThreadID)
		observability.LogBufferDrop(m.logger, e.ThreadID, buf.Dropped())
	}
	return stamped
}

func (m *Manager) buffer(threadID string) *Buffer {
	m.mu.RLock()
	buf, ok := m.buffers[threadID]
	m.mu.RUnlock()
	if ok {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok = m.buffers[threadID]; ok {
		return buf
	}
	buf = newBuffer(m.capacity)
	m.buffers[threadID] = buf
	return buf
}

// Events returns up to limit buffered events for the thread starting at
// offset, oldest first, plus the total buffered count. An unknown
// thread yields an empty page.
func (m *Manager) Events(threadID string, offset, limit int) ([]Event, int) {
	m.mu.RLock()
	buf, ok := m.buffers[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, 0
	}
	return buf.Page(offset, limit)
}

// Snapshot returns all buffered events for the thread, oldest first.
func (m *Manager) Snapshot(threadID string) []Event {
	m.mu.RLock()
	buf, ok := m.buffers[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return buf.Snapshot()
}

// Clear drops the thread's buffer. Future events recreate it.
func (m *Manager) Clear(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, threadID)
}

// ActiveThreads returns the ids of all threads with a live buffer,
// sorted for stable output.
func (m *Manager) ActiveThreads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvictIdle reclaims buffers whose last append is older than the idle
// TTL. It returns the ids of the evicted threads.
func (m *Manager) EvictIdle(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []string
	for id, buf := range m.buffers {
		idle := now.Sub(buf.LastSeen())
		if idle >= m.idleTTL {
			delete(m.buffers, id)
			evicted = append(evicted, id)
			observability.LogBufferEvicted(m.logger, id, idle)
		}
	}
	return evicted
}

// IdleTTL reports how long an untouched buffer survives.
func (m *Manager) IdleTTL() time.Duration {
	return m.idleTTL
}
