package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"streamtracker/backend/internal/collab"
)

const updateSemTimeout = 200 * time.Millisecond

// Conn is one attached client session. The read loop processes inbound
// actions strictly one at a time; the write loop drains the buffered
// outbound queue. No error from a single action may escape the action:
// everything maps to a private reply and the session stays attached.
type Conn struct {
	ws     *websocket.Conn
	hub    *Hub
	actor  collab.Actor
	svc    collab.Service
	sem    *collab.SemaphoreControl
	logger *zap.Logger

	send      chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, hub *Hub, actor collab.Actor, svc collab.Service, sem *collab.SemaphoreControl, logger *zap.Logger) *Conn {
	return &Conn{
		ws:     ws,
		hub:    hub,
		actor:  actor,
		svc:    svc,
		sem:    sem,
		logger: logger,
		send:   make(chan OutboundMessage, 32),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks: a full queue drops the message. Clients that fall
// this far behind resynchronize from their next roster/heartbeat anyway.
func (c *Conn) enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.logger.Debug("websocket read ended",
				zap.Uint64("userId", c.actor.Member.ID), zap.Error(err))
			return
		}
		switch msg.Type {
		case "lock_cell":
			c.handleLock(ctx, msg)
		case "unlock_cell":
			c.handleUnlock(ctx, msg)
		case "update_cell":
			c.handleUpdate(ctx, msg)
		case "heartbeat":
			c.handleHeartbeat(ctx)
		default:
			c.enqueue(ServerMessage{Type: "ignored", Content: "unknown message type"})
		}
	}
}

func (c *Conn) handleLock(ctx context.Context, msg ClientMessage) {
	if msg.EntityID == 0 || msg.Field == "" {
		c.replyError("MALFORMED", "lock_cell requires entityId and field")
		return
	}
	actErr := c.svc.LockCell(ctx, c.actor, msg.EntityID, msg.Field)
	if actErr == nil {
		return
	}
	if actErr.Code == collab.CodeLockConflict {
		// Private denial naming the holder; nothing is broadcast.
		c.enqueue(ServerMessage{
			Type:     "lock_denied",
			EntityID: msg.EntityID,
			Field:    msg.Field,
			Holder:   actErr.Holder,
		})
		return
	}
	c.replyError(actErr.Code, actErr.Error())
}

func (c *Conn) handleUnlock(ctx context.Context, msg ClientMessage) {
	if msg.EntityID == 0 || msg.Field == "" {
		c.replyError("MALFORMED", "unlock_cell requires entityId and field")
		return
	}
	if actErr := c.svc.UnlockCell(ctx, c.actor, msg.EntityID, msg.Field); actErr != nil {
		c.replyError(actErr.Code, actErr.Error())
	}
}

func (c *Conn) handleUpdate(ctx context.Context, msg ClientMessage) {
	if msg.EntityID == 0 || msg.Field == "" {
		c.replyError("MALFORMED", "update_cell requires entityId and field")
		return
	}
	semCtx, cancel := context.WithTimeout(ctx, updateSemTimeout)
	defer cancel()
	if err := c.sem.Acquire(semCtx); err != nil {
		c.replyError("BUSY", "too many concurrent updates, retry")
		return
	}
	defer c.sem.Release()

	if actErr := c.svc.UpdateCell(ctx, c.actor, msg.EntityID, msg.Field, msg.Value); actErr != nil {
		c.replyError(actErr.Code, actErr.Error())
	}
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	roster, err := c.svc.Refresh(ctx, c.actor)
	if err != nil {
		c.replyError(collab.CodeStoreUnavailable, "presence refresh failed")
		return
	}
	c.enqueue(ServerMessage{Type: "roster", Members: roster})
}

func (c *Conn) replyError(code, content string) {
	c.enqueue(ServerMessage{Type: "error", Code: code, Content: content})
}
