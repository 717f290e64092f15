// Package realtime pushes board events to websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/boardsync/apiserver/internal/mq"
	"github.com/boardsync/apiserver/types"
)

// AccessChecker decides whether a user may subscribe to a board.
type AccessChecker interface {
	CheckBoardAccess(ctx context.Context, userID, boardID string) error
}

// AccessCheckerFunc adapts a function to AccessChecker.
type AccessCheckerFunc func(ctx context.Context, userID, boardID string) error

func (f AccessCheckerFunc) CheckBoardAccess(ctx context.Context, userID, boardID string) error {
	return f(ctx, userID, boardID)
}

// Relay carries events between server instances.
type Relay interface {
	PublishFanout(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	SubscribeFanout(ctx context.Context, channel string, handler mq.Handler) error
}

// Hub owns the registry of live connections: by user and by board room.
// Without a relay events are delivered only to local connections.
type Hub struct {
	access AccessChecker
	relay  Relay
	logger *slog.Logger

	mu     sync.RWMutex
	users  map[string]map[*Client]struct{}
	boards map[string]map[*Client]struct{}
}

func NewHub(access AccessChecker, relay Relay, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		access: access,
		relay:  relay,
		logger: logger,
		users:  make(map[string]map[*Client]struct{}),
		boards: make(map[string]map[*Client]struct{}),
	}
}

// Run consumes relayed events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return h.relay.SubscribeFanout(ctx, mq.ChannelBoardEvents, func(ctx context.Context, msg mq.Message) error {
		var event types.BoardEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			h.logger.WarnContext(ctx, "drop malformed board event", "message_id", msg.ID, "error", err)
			return nil
		}
		h.deliver(event)
		return nil
	})
}

// Publish emits event to every subscriber on every instance. Failures are
// logged: a missed notification never fails the mutation that caused it.
func (h *Hub) Publish(ctx context.Context, event types.BoardEvent) {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now()
	}
	if h.relay == nil {
		h.deliver(event)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode board event", "type", event.Type, "error", err)
		return
	}
	if _, err := h.relay.PublishFanout(ctx, mq.ChannelBoardEvents, data, map[string]string{"type": string(event.Type)}); err != nil {
		h.logger.WarnContext(ctx, "relay board event failed, delivering locally", "type", event.Type, "error", err)
		h.deliver(event)
	}
}

func (h *Hub) deliver(event types.BoardEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode board event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := h.boards[event.BoardID]
	if event.TargetUserID != "" {
		targets = h.users[event.TargetUserID]
	}
	var slow []*Client
	for c := range targets {
		if !c.trySendLocked(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("websocket send buffer full, closing", "user_id", c.userID)
		h.unregister(c)
	}
}

// sendTo queues data for c unless c is gone.
func (h *Hub) sendTo(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c.trySendLocked(data)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
}

// unregister drops c from every index and closes its send queue. It is
// idempotent.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.users[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.users, c.userID)
	}
	for boardID := range c.boards {
		h.leaveLocked(c, boardID)
	}
	c.closed = true
	close(c.send)
}

func (h *Hub) join(c *Client, boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	if h.boards[boardID] == nil {
		h.boards[boardID] = make(map[*Client]struct{})
	}
	h.boards[boardID][c] = struct{}{}
	c.boards[boardID] = struct{}{}
}

func (h *Hub) leave(c *Client, boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, boardID)
}

func (h *Hub) leaveLocked(c *Client, boardID string) {
	delete(c.boards, boardID)
	room := h.boards[boardID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.boards, boardID)
	}
}

// ConnectionCount reports the number of live connections of userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomSize reports the number of connections subscribed to boardID.
func (h *Hub) RoomSize(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardID])
}
