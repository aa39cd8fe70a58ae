package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"streamtracker/backend/internal/cache"
	"streamtracker/backend/internal/collab"
)

// Upgrader allowing local development origins.
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

// Deterministic presence colors: the same user renders the same color on
// every client without coordination.
var memberPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

func memberColor(userID uint64) string {
	return memberPalette[userID%uint64(len(memberPalette))]
}

type Manager struct {
	hub    *Hub
	svc    collab.Service
	sem    *collab.SemaphoreControl
	logger *zap.Logger
}

func NewManager(hub *Hub, svc collab.Service, sem *collab.SemaphoreControl, logger *zap.Logger) *Manager {
	return &Manager{hub: hub, svc: svc, sem: sem, logger: logger}
}

// WebSocketConnect attaches one authenticated client to the room. The
// middleware has already established identity; an empty one means the
// handshake never authenticated and the connection is refused.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	role := c.GetString("role")
	if userID == 0 {
		c.String(http.StatusUnauthorized, "unauthenticated")
		return
	}
	actor := collab.Actor{
		Member: cache.Member{
			ID:    userID,
			Name:  username,
			Color: memberColor(userID),
		},
		CanEdit: role == "editor" || role == "admin",
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed",
			zap.String("origin", c.Request.Header.Get("Origin")), zap.Error(err))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, actor, m.svc, m.sem, m.logger)
	m.hub.Join(wsConn)
	go wsConn.writeLoop()

	ctx := c.Request.Context()
	roster, err := m.svc.Join(ctx, actor)
	if err != nil {
		m.logger.Warn("join failed", zap.Uint64("userId", userID), zap.Error(err))
		wsConn.enqueue(ServerMessage{Type: "error", Code: collab.CodeStoreUnavailable, Content: "join failed"})
	} else {
		wsConn.enqueue(ServerMessage{Type: "roster", Members: roster})
	}

	// Blocks until the client goes away.
	wsConn.readLoop(ctx)

	m.hub.Leave(wsConn)
	// The request context is already dead once the socket closes; the
	// disconnect sweep gets its own deadline.
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.svc.Leave(leaveCtx, actor)
	wsConn.close()
}
