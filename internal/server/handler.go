package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chatapi/internal/models"
	"chatapi/internal/presence"
	"chatapi/internal/store"
	"chatapi/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Handler 聚合所有 HTTP handler，依赖注入存储与实时层。
type Handler struct {
	st       *store.Store
	messages *store.Messages
	registry *ws.Registry
	presence *presence.Tracker
	rdb      *redis.Client
}

func NewHandler(st *store.Store, registry *ws.Registry, pres *presence.Tracker, rdb *redis.Client) *Handler {
	return &Handler{
		st:       st,
		messages: st.Messages(),
		registry: registry,
		presence: pres,
		rdb:      rdb,
	}
}

// Health 报告进程与两个后端的连通状态。后端不可用时降级而非直接 500，
// 探活方可按 status 字段决策。
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	mongoOK := h.st.Ping(ctx) == nil
	redisOK := h.rdb.Ping(ctx).Err() == nil
	status := "ok"
	if !mongoOK || !redisOK {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "mongo": mongoOK, "redis": redisOK})
}

// ListRooms 返回当前有连接的房间及各自的在线用户快照。
func (h *Handler) ListRooms(c *gin.Context) {
	type roomDTO struct {
		Room        string   `json:"room"`
		Clients     int      `json:"clients"`
		OnlineUsers []string `json:"online_users"`
	}
	summaries := h.registry.Summaries()
	out := make([]roomDTO, 0, len(summaries))
	for _, s := range summaries {
		online, err := h.presence.OnlineUsers(c.Request.Context(), s.Room)
		if err != nil {
			log.Warn().Err(err).Str("room", s.Room).Msg("presence snapshot")
			online = []string{}
		}
		out = append(out, roomDTO{Room: s.Room, Clients: s.Clients, OnlineUsers: online})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out, "total_connections": h.registry.Total()})
}

// ListMessages 分页查询房间历史，before_id 为上一页最旧一条的 _id。
func (h *Handler) ListMessages(c *gin.Context) {
	room := c.Param("room")
	limit := clampLimit(c.Query("limit"))

	msgs, err := h.messages.ListBefore(c.Request.Context(), room, c.Query("before_id"), int64(limit))
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
			return
		}
		log.Error().Err(err).Str("room", room).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	if msgs == nil {
		msgs = []models.Message{}
	}
	var nextCursor any
	if len(msgs) > 0 {
		nextCursor = msgs[0].ID
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       msgs,
		"next_cursor": nextCursor,
		"room":        room,
		"count":       len(msgs),
	})
}

// CreateMessage 经 REST 写入一条消息，不经过实时分发。
func (h *Handler) CreateMessage(c *gin.Context) {
	room := c.Param("room")
	var in models.Inbound
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.messages.Insert(c.Request.Context(), room, in.Username, in.Content)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("create message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage 按 id 和房间双重限定删除消息。
func (h *Handler) DeleteMessage(c *gin.Context) {
	room := c.Param("room")
	id := c.Param("id")
	err := h.messages.Delete(c.Request.Context(), room, id)
	switch {
	case errors.Is(err, store.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case err != nil:
		log.Error().Err(err).Str("room", room).Str("id", id).Msg("delete message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// clampLimit 解析分页大小，非法或越界时回落到缺省值。
func clampLimit(raw string) int {
	if raw == "" {
		return defaultHistoryLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		return defaultHistoryLimit
	}
	return limit
}
