package api

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsWriteTimeout = 10 * time.Second

// StreamThread streams a thread's events over WebSocket. The client
// first receives the buffered backlog, oldest first, then live events
// as they arrive. Pings are sent on the heartbeat interval; the
// connection closes when the client goes away.
// GET /v1/realtime/threads/:thread_id/stream
func (h *Handler) StreamThread(c echo.Context) error {
	threadID := c.Param("thread_id")

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return nil
	}

	sub := h.ingestor.Subscribe(threadID)
	defer sub.Close()
	defer conn.Close()

	// Reader goroutine: the client never sends application data, but
	// reading is what surfaces pongs and the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case e := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(e); err != nil {
				if h.logger != nil {
					h.logger.Debug("stream write failed",
						slog.String("thread_id", threadID),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
