package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/realtime"
)

// IngestRequest is one inbound callback event. Configurable and
// Metadata feed thread resolution when thread_id is absent.
type IngestRequest struct {
	EventType    string         `json:"event_type"`
	RunID        string         `json:"run_id"`
	ParentRunID  string         `json:"parent_run_id"`
	ThreadID     string         `json:"thread_id"`
	Timestamp    time.Time      `json:"timestamp"`
	DurationMs   *float64       `json:"duration_ms"`
	Data         map[string]any `json:"data"`
	Configurable map[string]any `json:"configurable"`
	Metadata     map[string]any `json:"metadata"`
}

// IngestEvent accepts one callback event into the pipeline.
// POST /v1/events
func (h *Handler) IngestEvent(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.EventType == "" {
		return c.JSON(http.StatusBadRequest, errorBody("event_type is required"))
	}

	stamped := h.ingestor.Ingest(c.Request().Context(), realtime.Event{
		Type:        req.EventType,
		RunID:       req.RunID,
		ParentRunID: req.ParentRunID,
		ThreadID:    req.ThreadID,
		Timestamp:   req.Timestamp,
		DurationMs:  req.DurationMs,
		Data:        req.Data,
	}, realtime.CallContext{
		Configurable: req.Configurable,
		Metadata:     req.Metadata,
		RunID:        req.RunID,
	})
	return c.JSON(http.StatusAccepted, stamped)
}

// ActiveThreads lists threads with live event buffers.
// GET /v1/realtime/threads
func (h *Handler) ActiveThreads(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"threads": h.manager.ActiveThreads()})
}

// ListEvents pages through a thread's buffered events, oldest first.
// GET /v1/realtime/threads/:thread_id/events?limit=&offset=
func (h *Handler) ListEvents(c echo.Context) error {
	limit, offset := pagination(c)
	events, total := h.manager.Events(c.Param("thread_id"), offset, limit)
	return c.JSON(http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

// ClearThread drops a thread's buffered events.
// DELETE /v1/realtime/threads/:thread_id/events
func (h *Handler) ClearThread(c echo.Context) error {
	h.ingestor.Clear(c.Param("thread_id"))
	return c.NoContent(http.StatusNoContent)
}

// ThreadSummary aggregates a thread's buffered events.
// GET /v1/realtime/threads/:thread_id/summary
func (h *Handler) ThreadSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Summarize(c.Param("thread_id")))
}

// ExportThread serializes a thread's buffered events.
// GET /v1/realtime/threads/:thread_id/export?format=
func (h *Handler) ExportThread(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = realtime.FormatStructured
	}
	raw, err := h.manager.Export(c.Param("thread_id"), format)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	contentType := echo.MIMEApplicationJSON
	if format == realtime.FormatJSONL {
		contentType = "application/x-ndjson"
	}
	return c.Blob(http.StatusOK, contentType, raw)
}
