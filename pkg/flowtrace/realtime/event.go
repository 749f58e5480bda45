// Package realtime ingests callback events from a running agent engine
// and fans them out to live subscribers.
//
// Events are grouped per thread into bounded ring buffers. New
// subscribers receive the buffered backlog first, then live events.
// All components in this package are safe for concurrent use and keep
// threads fully independent of each other.
package realtime

import (
	"strings"
	"time"
)

// Well-known event types emitted by engine callbacks. The pipeline does
// not restrict types to this list; any "<x>_start"/"<x>_end" pair is
// matched for duration computation.
const (
	EventLLMStart   = "llm_start"
	EventLLMEnd     = "llm_end"
	EventToolStart  = "tool_start"
	EventToolEnd    = "tool_end"
	EventChainStart = "chain_start"
	EventChainEnd   = "chain_end"
	EventError      = "error"
)

// Event is one callback notification flowing through the pipeline.
//
// Sequence is assigned by the thread buffer at append time and is
// strictly increasing per thread. DurationMs is set on end events whose
// matching start event was observed; it stays nil otherwise.
type Event struct {
	Type        string         `json:"event_type"`
	RunID       string         `json:"run_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	ThreadID    string         `json:"thread_id"`
	Sequence    uint64         `json:"sequence"`
	Timestamp   time.Time      `json:"timestamp"`
	DurationMs  *float64       `json:"duration_ms,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// IsStart reports whether the event opens a run span.
func (e Event) IsStart() bool {
	return strings.HasSuffix(e.Type, "_start")
}

// IsEnd reports whether the event closes a run span.
func (e Event) IsEnd() bool {
	return strings.HasSuffix(e.Type, "_end")
}
