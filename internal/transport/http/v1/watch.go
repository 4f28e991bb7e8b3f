package v1

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/watch"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WatchSession relays every chunk a session emits over a WebSocket until the
// session closes or the watcher disconnects.
// GET /api/sessions/:id/watch
func (h *Handler) WatchSession(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.service.GetSession(id); err != nil {
		return errorJSON(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "session_id", id, "error", err)
		return nil
	}

	hub := h.service.Hub()
	sub := hub.Subscribe(id)
	// the session may have been deleted before the subscription landed
	if _, err := h.service.GetSession(id); err != nil {
		hub.Unsubscribe(sub)
	}

	go readPump(ws, hub, sub)
	writePump(ws, sub)
	return nil
}

// readPump discards client frames and unsubscribes when the peer goes away.
func readPump(ws *websocket.Conn, hub *watch.Hub, sub *watch.Subscriber) {
	defer hub.Unsubscribe(sub)

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("watch connection error", "subscriber_id", sub.ID, "error", err)
			}
			return
		}
	}
}

// writePump forwards queued chunks and keeps the connection alive with pings.
func writePump(ws *websocket.Conn, sub *watch.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-sub.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("failed to write watch message", "subscriber_id", sub.ID, "error", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
