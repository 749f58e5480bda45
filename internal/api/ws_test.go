package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/realtime"
)

func TestStreamThreadReplaysThenFollows(t *testing.T) {
	h := newTestHandler(t)
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	// Two events buffered before the client connects.
	for _, body := range []string{
		`{"event_type":"chain_start","run_id":"r1","thread_id":"ws-1"}`,
		`{"event_type":"llm_start","run_id":"r2","thread_id":"ws-1"}`,
	} {
		resp, err := http.Post(srv.URL+"/v1/events", echo.MIMEApplicationJSON, strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime/threads/ws-1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() realtime.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var e realtime.Event
		require.NoError(t, conn.ReadJSON(&e))
		return e
	}

	first := readEvent()
	second := readEvent()
	assert.Equal(t, "r1", first.RunID, "backlog must arrive first, oldest first")
	assert.Equal(t, "r2", second.RunID)

	// A live event published after connect follows the backlog.
	resp2, err := http.Post(srv.URL+"/v1/events", echo.MIMEApplicationJSON,
		strings.NewReader(`{"event_type":"llm_end","run_id":"r2","thread_id":"ws-1"}`))
	require.NoError(t, err)
	resp2.Body.Close()

	third := readEvent()
	assert.Equal(t, "llm_end", third.Type)
	assert.Equal(t, second.Sequence+1, third.Sequence)
}
