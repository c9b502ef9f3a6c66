package websocket

import (
	"time"

	"collabhub/internal/config"
	"collabhub/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one authenticated connection. A user may hold several.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	user   *models.User
	connID string
	cfg    config.WebSocketConfig
	log    *zap.SugaredLogger
}

func newClient(hub *Hub, conn *websocket.Conn, user *models.User, cfg config.WebSocketConfig, log *zap.SugaredLogger) *Client {
	connID := uuid.NewString()
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		user:   user,
		connID: connID,
		cfg:    cfg,
		log:    log.With("userId", user.ID, "connId", connID),
	}
}

// readPump hands each frame to handle in arrival order until the peer goes
// away or handle returns false.
func (c *Client) readPump(handle func(frame []byte) bool) {
	defer c.conn.Close()

	// Set read deadline and pong handler for connection health
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warnw("WebSocket read error", "error", err)
			}
			return
		}
		if !handle(frame) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debugw("Write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
