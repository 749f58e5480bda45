package realtime

import (
	"sync"
	"time"
)

// DefaultBufferCapacity bounds each per-thread buffer unless overridden.
const DefaultBufferCapacity = 1000

// Buffer is a bounded ring of events for one thread. When full, the
// oldest event is evicted to admit the newest. Sequence numbers are
// assigned at append and never reused, so readers can detect gaps left
// by eviction.
type Buffer struct {
	mu       sync.RWMutex
	events   []Event
	head     int // index of the oldest event
	size     int
	nextSeq  uint64
	dropped  uint64
	lastSeen time.Time
}

func newBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{events: make([]Event, capacity)}
}

// Append stamps the event with the next sequence number and stores it,
// evicting the oldest entry if the buffer is full. It returns the
// stamped event and whether an eviction happened.
func (b *Buffer) Append(e Event) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.Sequence = b.nextSeq
	b.nextSeq++
	// Idle tracking follows the same clock that stamped the event, so
	// eviction and stamping can't drift apart under an injected clock.
	if e.Timestamp.IsZero() {
		b.lastSeen = time.Now()
	} else {
		b.lastSeen = e.Timestamp
	}

	evicted := false
	if b.size == len(b.events) {
		b.head = (b.head + 1) % len(b.events)
		b.size--
		b.dropped++
		evicted = true
	}
	b.events[(b.head+b.size)%len(b.events)] = e
	b.size++
	return e, evicted
}

// Snapshot returns all buffered events, oldest first.
func (b *Buffer) Snapshot() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sliceLocked(0, b.size)
}

// Page returns up to limit events starting at offset from the oldest
// buffered event, plus the total number currently buffered. A limit of
// 0 or less means no limit.
func (b *Buffer) Page(offset, limit int) ([]Event, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= b.size {
		return nil, b.size
	}
	n := b.size - offset
	if limit > 0 && limit < n {
		n = limit
	}
	return b.sliceLocked(offset, n), b.size
}

func (b *Buffer) sliceLocked(offset, n int) []Event {
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = b.events[(b.head+offset+i)%len(b.events)]
	}
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Dropped returns the number of events evicted since creation.
func (b *Buffer) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// LastSeen returns the time of the most recent append.
func (b *Buffer) LastSeen() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeen
}
