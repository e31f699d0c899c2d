package live

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames; anything bigger is a misbehaving peer.
	maxMessageSize = 4 * 1024
)

// NewUpgrader returns an upgrader that accepts the given origin ("*" for any).
func NewUpgrader(origin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return origin == "*" || r.Header.Get("Origin") == "" || r.Header.Get("Origin") == origin
		},
	}
}

// ServeWS upgrades the request and streams events for topics until the
// peer goes away. The subscription is registered before the handshake
// completes, so nothing published after the client sees the upgrade is
// missed.
func (h *Hub) ServeWS(up *websocket.Upgrader, w http.ResponseWriter, r *http.Request, topics []string) {
	sub := h.Subscribe(topics...)
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		sub.Close()
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, sub: sub, hub: h}
	go c.writePump()
	c.readPump()
}

// client is a middleman between the websocket connection and the hub.
type client struct {
	conn *websocket.Conn
	sub  *Subscription
	hub  *Hub
}

// readPump discards inbound frames and exists to notice the peer leaving.
func (c *client) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("unexpected websocket close", "error", err)
			}
			return
		}
	}
}

// writePump forwards subscription events as JSON text frames.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
