package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client actions.
const (
	ActionJoinBoard  = "join_board"
	ActionLeaveBoard = "leave_board"
)

type incomingMessage struct {
	Action  string `json:"action"`
	BoardID string `json:"board_id"`
}

type reply struct {
	Type    string `json:"type"`
	BoardID string `json:"board_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client is one websocket connection of an authenticated user. boards and
// closed are guarded by the hub's lock.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	boards map[string]struct{}
	closed bool
}

// ServeWS upgrades the request and runs the connection until it closes.
// allowedOrigins lists the Origin values accepted; empty accepts any.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, allowedOrigins []string) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		boards: make(map[string]struct{}),
	}
	h.register(c)

	// The request context ends when the handler returns; the read loop
	// outlives it.
	ctx := context.WithoutCancel(r.Context())
	go c.writePump()
	go c.readPump(ctx)
}

// trySendLocked reports false when the client is too slow to keep up. The
// caller holds the hub's lock.
func (c *Client) trySendLocked(data []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.DebugContext(ctx, "websocket closed", "user_id", c.userID, "error", err)
			}
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(reply{Type: "error", Message: "Invalid message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg incomingMessage) {
	switch msg.Action {
	case ActionJoinBoard:
		if err := c.hub.access.CheckBoardAccess(ctx, c.userID, msg.BoardID); err != nil {
			c.reply(reply{Type: "error", BoardID: msg.BoardID, Message: "Board not found"})
			return
		}
		c.hub.join(c, msg.BoardID)
		c.reply(reply{Type: "joined_board", BoardID: msg.BoardID})
	case ActionLeaveBoard:
		c.hub.leave(c, msg.BoardID)
		c.reply(reply{Type: "left_board", BoardID: msg.BoardID})
	default:
		c.reply(reply{Type: "error", Message: "Unknown action"})
	}
}

func (c *Client) reply(r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.hub.sendTo(c, data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
