package streaming

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebsocketServer(t *testing.T, hub *StreamHub, allow OriginChecker) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /ws/dashboard/{room}", NewWebsocketHandler(hub, allow, zerolog.Nop()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebsocket_StreamsRoomEvents(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()
	srv := newWebsocketServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/dashboard/dashboard"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("dashboard") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("dashboard", NewDashboardEvent(map[string]any{"spending": map[string]float64{"January": -50}}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type EventType      `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventTypeDashboard, got.Type)
	assert.Contains(t, got.Data, "spending")

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("dashboard") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocket_RejectsOrigin(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()
	srv := newWebsocketServer(t, hub, func(origin string) bool { return origin == "https://app.example" })

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/dashboard/dashboard"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/dashboard/dashboard"), header)
	require.NoError(t, err)
	conn.Close()
}
