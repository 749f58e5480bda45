package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
)

// StoreInfo reports the connected store's dialect and capabilities.
// GET /v1/info
func (h *Handler) StoreInfo(c echo.Context) error {
	info, err := h.adapter.Info(c.Request().Context())
	if err != nil {
		return h.storeError(c, "query store info", err)
	}
	return c.JSON(http.StatusOK, info)
}

// ListThreads lists thread ids, most recently active first.
// GET /v1/threads?limit=&offset=
func (h *Handler) ListThreads(c echo.Context) error {
	limit, offset := pagination(c)
	threads, total, err := h.adapter.ListThreads(c.Request().Context(), limit, offset)
	if err != nil {
		return h.storeError(c, "list threads", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"threads": threads, "total": total})
}

// ListCheckpoints lists a thread's checkpoints, newest first.
// GET /v1/threads/:thread_id/checkpoints?limit=&offset=
func (h *Handler) ListCheckpoints(c echo.Context) error {
	limit, offset := pagination(c)
	checkpoints, total, err := h.adapter.ListCheckpoints(c.Request().Context(), c.Param("thread_id"), limit, offset)
	if err != nil {
		return h.storeError(c, "list checkpoints", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"checkpoints": checkpoints, "total": total})
}

// GetTrace reconstructs the execution graph for one checkpoint.
// GET /v1/threads/:thread_id/checkpoints/:checkpoint_id/trace?include_blobs=
func (h *Handler) GetTrace(c echo.Context) error {
	includeBlobs := true
	if v := c.QueryParam("include_blobs"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody("include_blobs must be a boolean"))
		}
		includeBlobs = parsed
	}

	result, err := h.recon.Trace(c.Request().Context(), c.Param("thread_id"), c.Param("checkpoint_id"), includeBlobs)
	if err != nil {
		return h.storeError(c, "reconstruct trace", err)
	}
	return c.JSON(http.StatusOK, result)
}

// AnalyzeThread aggregates metrics over a whole thread.
// GET /v1/threads/:thread_id/analysis
func (h *Handler) AnalyzeThread(c echo.Context) error {
	analysis, err := h.recon.AnalyzeThread(c.Request().Context(), c.Param("thread_id"))
	if err != nil {
		return h.storeError(c, "analyze thread", err)
	}
	return c.JSON(http.StatusOK, analysis)
}

// Timeline lists a thread's checkpoints as an execution timeline.
// GET /v1/threads/:thread_id/timeline?limit=
func (h *Handler) Timeline(c echo.Context) error {
	limit, _ := pagination(c)
	timeline, err := h.recon.Timeline(c.Request().Context(), c.Param("thread_id"), limit)
	if err != nil {
		return h.storeError(c, "build timeline", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"timeline": timeline})
}

// Compare diffs channel state between two checkpoints of a thread.
// GET /v1/threads/:thread_id/diff?source=&target=
func (h *Handler) Compare(c echo.Context) error {
	source := c.QueryParam("source")
	target := c.QueryParam("target")
	if source == "" || target == "" {
		return c.JSON(http.StatusBadRequest, errorBody("source and target checkpoint ids are required"))
	}

	diff, err := h.recon.Compare(c.Request().Context(), c.Param("thread_id"), source, target)
	if err != nil {
		return h.storeError(c, "compare checkpoints", err)
	}
	return c.JSON(http.StatusOK, diff)
}

// storeError maps store errors onto HTTP statuses.
func (h *Handler) storeError(c echo.Context, op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("not found"))
	}
	if h.logger != nil {
		h.logger.Error(op+" failed",
			slog.String("path", c.Request().URL.Path),
			slog.String("error", err.Error()),
		)
	}
	return c.JSON(http.StatusInternalServerError, errorBody(op+" failed"))
}

func pagination(c echo.Context) (limit, offset int) {
	limit = 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
