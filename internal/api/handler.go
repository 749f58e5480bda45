// Package api exposes the trace reconstructor and realtime pipeline
// over HTTP and WebSocket.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/realtime"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/trace"
)

// DefaultHeartbeatInterval paces WebSocket pings when no interval is
// configured.
const DefaultHeartbeatInterval = 30 * time.Second

// Handler serves the flowtrace HTTP API.
type Handler struct {
	adapter   store.Adapter
	recon     *trace.Reconstructor
	ingestor  *realtime.Ingestor
	manager   *realtime.Manager
	logger    *slog.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger. A nil logger disables logging.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHeartbeatInterval sets the WebSocket ping interval.
func WithHeartbeatInterval(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewHandler builds the API handler over the offline and realtime
// halves of the system.
func NewHandler(adapter store.Adapter, recon *trace.Reconstructor, ingestor *realtime.Ingestor, manager *realtime.Manager, opts ...HandlerOption) *Handler {
	h := &Handler{
		adapter:   adapter,
		recon:     recon,
		ingestor:  ingestor,
		manager:   manager,
		heartbeat: DefaultHeartbeatInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts all API routes on the Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")

	v1.GET("/info", h.StoreInfo)
	v1.GET("/threads", h.ListThreads)
	v1.GET("/threads/:thread_id/checkpoints", h.ListCheckpoints)
	v1.GET("/threads/:thread_id/checkpoints/:checkpoint_id/trace", h.GetTrace)
	v1.GET("/threads/:thread_id/analysis", h.AnalyzeThread)
	v1.GET("/threads/:thread_id/timeline", h.Timeline)
	v1.GET("/threads/:thread_id/diff", h.Compare)

	v1.POST("/events", h.IngestEvent)
	rt := v1.Group("/realtime/threads")
	rt.GET("", h.ActiveThreads)
	rt.GET("/:thread_id/events", h.ListEvents)
	rt.DELETE("/:thread_id/events", h.ClearThread)
	rt.GET("/:thread_id/summary", h.ThreadSummary)
	rt.GET("/:thread_id/export", h.ExportThread)
	rt.GET("/:thread_id/stream", h.StreamThread)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
