package controller

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cloudpico-viewer/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// handleStream upgrades to a WebSocket and pushes the session state: once on
// connect, then after every change. Bursts of changes are coalesced so a slow
// reader only ever receives the latest state.
func (c *stationControllerImpl) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("station: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := c.logger.With("remote", r.RemoteAddr)
	log.Info("state stream opened")
	defer log.Info("state stream closed")

	changed := make(chan struct{}, 1)
	changed <- struct{}{}
	unsubscribe := c.session.Subscribe(func(session.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-changed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(c.session.State()); err != nil {
				log.Debug("state stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-closed:
			return
		}
	}
}

// readPump consumes control frames so pongs and close frames are processed.
// The stream is one-way; data frames from the client are discarded.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
