package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"streamtracker/backend/internal/cache"
	"streamtracker/backend/internal/collab"
	"streamtracker/backend/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// StreamHandler is the REST CRUD surface over the stream table. Full
// record changes made here publish stream_updated through the same
// gateway the realtime editors broadcast on, so attached clients refresh.
type StreamHandler struct {
	streams *store.StreamStore
	gateway collab.Broadcaster
	logger  *zap.Logger
}

func NewStreamHandler(streams *store.StreamStore, gateway collab.Broadcaster, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{streams: streams, gateway: gateway, logger: logger}
}

type streamReq struct {
	Title       string     `json:"title" binding:"required"`
	SourceURL   string     `json:"sourceUrl"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func (h *StreamHandler) List(c *gin.Context) {
	limit := intQuery(c, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	streams, total, err := h.streams.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list streams failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list streams failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": streams, "total": total})
}

func (h *StreamHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stream, err := h.streams.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		h.logger.Error("get stream failed", zap.Uint64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get stream failed"})
		return
	}
	c.JSON(http.StatusOK, stream)
}

func (h *StreamHandler) Create(c *gin.Context) {
	if !canEdit(c) {
		return
	}
	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	status := req.Status
	if status == "" {
		status = "planned"
	}
	stream := store.Stream{
		Title:       req.Title,
		SourceURL:   req.SourceURL,
		Status:      status,
		Notes:       req.Notes,
		ScheduledAt: req.ScheduledAt,
	}
	if err := h.streams.Create(c.Request.Context(), &stream); err != nil {
		h.logger.Error("create stream failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create stream failed"})
		return
	}
	c.JSON(http.StatusOK, stream)
}

func (h *StreamHandler) Update(c *gin.Context) {
	if !canEdit(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	stream := store.Stream{
		ID:          id,
		Title:       req.Title,
		SourceURL:   req.SourceURL,
		Status:      req.Status,
		Notes:       req.Notes,
		ScheduledAt: req.ScheduledAt,
	}
	if err := h.streams.Update(c.Request.Context(), &stream); err != nil {
		if errors.Is(err, store.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		h.logger.Error("update stream failed", zap.Uint64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update stream failed"})
		return
	}
	h.gateway.Publish(collab.Event{
		Type:     collab.EventStreamUpdated,
		EntityID: id,
		User:     callerMember(c),
		At:       time.Now().UTC(),
	})
	c.JSON(http.StatusOK, stream)
}

func (h *StreamHandler) Delete(c *gin.Context) {
	if c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.streams.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		h.logger.Error("delete stream failed", zap.Uint64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete stream failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func canEdit(c *gin.Context) bool {
	role := c.GetString("role")
	if role == "editor" || role == "admin" {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "editor role required"})
	return false
}

func callerMember(c *gin.Context) cache.Member {
	return cache.Member{ID: c.GetUint64("userId"), Name: c.GetString("username")}
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
