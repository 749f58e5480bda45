package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Export formats.
const (
	// FormatStructured is a single JSON document with the thread
	// summary and the full event list.
	FormatStructured = "structured"

	// FormatJSONL is one JSON object per line, one event per line.
	FormatJSONL = "jsonl"
)

// StructuredExport is the FormatStructured document shape.
type StructuredExport struct {
	Summary ThreadSummary `json:"summary"`
	Events  []Event       `json:"events"`
}

// Export serializes the thread's buffered events in the given format.
func (m *Manager) Export(threadID, format string) ([]byte, error) {
	events := m.Snapshot(threadID)
	switch format {
	case FormatStructured:
		doc := StructuredExport{
			Summary: m.Summarize(threadID),
			Events:  events,
		}
		return json.MarshalIndent(doc, "", "  ")
	case FormatJSONL:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return nil, fmt.Errorf("encoding event %d: %w", e.Sequence, err)
			}
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
