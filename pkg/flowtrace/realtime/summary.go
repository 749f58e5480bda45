package realtime

import "time"

// ThreadSummary aggregates one thread's buffered events.
type ThreadSummary struct {
	ThreadID    string         `json:"thread_id"`
	EventCount  int            `json:"event_count"`
	EventTypes  map[string]int `json:"event_types"`
	FirstEvent  time.Time      `json:"first_event,omitzero"`
	LastEvent   time.Time      `json:"last_event,omitzero"`
	SpanMs      float64        `json:"span_ms"`
	TotalTokens int64          `json:"total_tokens"`
	Dropped     uint64         `json:"dropped"`
}

// Summarize computes counts, span, and token totals over the thread's
// buffered events. Unknown threads yield a zero-count summary.
func (m *Manager) Summarize(threadID string) ThreadSummary {
	s := ThreadSummary{
		ThreadID:   threadID,
		EventTypes: make(map[string]int),
	}

	m.mu.RLock()
	buf, ok := m.buffers[threadID]
	m.mu.RUnlock()
	if !ok {
		return s
	}

	events := buf.Snapshot()
	s.EventCount = len(events)
	s.Dropped = buf.Dropped()
	for _, e := range events {
		s.EventTypes[e.Type]++
		if s.FirstEvent.IsZero() || e.Timestamp.Before(s.FirstEvent) {
			s.FirstEvent = e.Timestamp
		}
		if e.Timestamp.After(s.LastEvent) {
			s.LastEvent = e.Timestamp
		}
		if e.IsEnd() {
			s.TotalTokens += eventTokens(e.Data)
		}
	}
	if !s.FirstEvent.IsZero() {
		s.SpanMs = float64(s.LastEvent.Sub(s.FirstEvent).Microseconds()) / 1000.0
	}
	return s
}

// eventTokens pulls a total-token count out of an end event's payload.
// Engines report usage under a few different keys.
func eventTokens(data map[string]any) int64 {
	if data == nil {
		return 0
	}
	for _, key := range []string{"token_usage", "usage_metadata", "usage"} {
		nested, ok := data[key].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range []string{"total_tokens", "total"} {
			if n, ok := tokenCount(nested[field]); ok {
				return n
			}
		}
	}
	if n, ok := tokenCount(data["total_tokens"]); ok {
		return n
	}
	return 0
}

func tokenCount(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
