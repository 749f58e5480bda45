package realtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d := 180.0

	m.Append(ctx, Event{Type: EventLLMStart, RunID: "r1", ThreadID: "t1", Timestamp: base})
	m.Append(ctx, Event{
		Type: EventLLMEnd, RunID: "r1", ThreadID: "t1",
		Timestamp:  base.Add(200 * time.Millisecond),
		DurationMs: &d,
		Data: map[string]any{
			"token_usage": map[string]any{"total_tokens": 150},
		},
	})
	m.Append(ctx, Event{Type: EventChainStart, RunID: "r2", ThreadID: "t2", Timestamp: base})
	return m
}

func TestSummarize(t *testing.T) {
	m := seedManager(t)
	s := m.Summarize("t1")

	assert.Equal(t, 2, s.EventCount)
	assert.Equal(t, map[string]int{EventLLMStart: 1, EventLLMEnd: 1}, s.EventTypes)
	assert.Equal(t, int64(150), s.TotalTokens)
	assert.InDelta(t, 200.0, s.SpanMs, 0.001)
}

func TestSummarizeUnknownThread(t *testing.T) {
	m := NewManager()
	s := m.Summarize("ghost")
	assert.Equal(t, 0, s.EventCount)
	assert.Empty(t, s.EventTypes)
	assert.True(t, s.FirstEvent.IsZero())
}

func TestEventTokensVariants(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want int64
	}{
		{"token_usage", map[string]any{"token_usage": map[string]any{"total_tokens": 42}}, 42},
		{"usage_metadata", map[string]any{"usage_metadata": map[string]any{"total_tokens": float64(7)}}, 7},
		{"top-level", map[string]any{"total_tokens": int64(9)}, 9},
		{"absent", map[string]any{"output": "hi"}, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventTokens(tt.data))
		})
	}
}

func TestExportStructured(t *testing.T) {
	m := seedManager(t)
	raw, err := m.Export("t1", FormatStructured)
	require.NoError(t, err)

	var doc StructuredExport
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "t1", doc.Summary.ThreadID)
	require.Len(t, doc.Events, 2)
	assert.Equal(t, EventLLMStart, doc.Events[0].Type)
}

func TestExportJSONL(t *testing.T) {
	m := seedManager(t)
	raw, err := m.Export("t1", FormatJSONL)
	require.NoError(t, err)

	var lines int
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestExportUnsupportedFormat(t *testing.T) {
	m := NewManager()
	_, err := m.Export("t1", "csv")
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestActiveThreadsSorted(t *testing.T) {
	m := seedManager(t)
	assert.Equal(t, []string{"t1", "t2"}, m.ActiveThreads())
}

func TestEvictIdle(t *testing.T) {
	m := NewManager(WithIdleTTL(time.Minute))
	ctx := context.Background()
	m.Append(ctx, Event{Type: EventChainStart, ThreadID: "stale"})

	assert.Empty(t, m.EvictIdle(time.Now()))
	evicted := m.EvictIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, []string{"stale"}, evicted)
	assert.Empty(t, m.ActiveThreads())
}
