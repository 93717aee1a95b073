package streaming

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// OriginChecker reports whether a browser origin may subscribe.
type OriginChecker func(origin string) bool

// WebsocketHandler upgrades requests and streams a room's events as JSON
// text frames. The room comes from the {room} path value.
type WebsocketHandler struct {
	hub      *StreamHub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWebsocketHandler returns a handler. A nil allowOrigin accepts every
// origin.
func NewWebsocketHandler(hub *StreamHub, allowOrigin OriginChecker, log zerolog.Logger) *WebsocketHandler {
	h := &WebsocketHandler{
		hub: hub,
		log: log.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowOrigin == nil {
			return true
		}
		return allowOrigin(origin)
	}
	return h
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := h.hub.Register(room)
	log := h.log.With().Str("room", room).Str("client", client.ID).Logger()
	log.Info().Msg("subscriber connected")

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, client, done, log)

	h.hub.Unregister(room, client)
	conn.Close()
	log.Info().Msg("subscriber disconnected")
}

// readPump discards client messages and closes done when the peer goes away.
func (h *WebsocketHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebsocketHandler) writePump(conn *websocket.Conn, client *Client, done <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.Events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
