package server

import (
	"context"
	"time"

	"chatapi/internal/bus"
	"chatapi/internal/cache"
	"chatapi/internal/config"
	"chatapi/internal/metrics"
	"chatapi/internal/mw"
	"chatapi/internal/presence"
	"chatapi/internal/ratelimit"
	"chatapi/internal/store"
	"chatapi/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// busAdapter 把 Redis 总线的具体订阅类型收窄为会话侧的接口。
type busAdapter struct {
	*bus.Bus
}

func (b busAdapter) Subscribe(ctx context.Context, room string) (ws.Subscription, error) {
	return b.Bus.Subscribe(ctx, room)
}

// NewServices 把各基础设施组件装配成会话依赖。
func NewServices(reg *ws.Registry, st *store.Store, c *cache.Cache, b *bus.Bus, p *presence.Tracker, l *ratelimit.Limiter) ws.Services {
	return ws.Services{
		Registry: reg,
		History:  st.Messages(),
		Cache:    c,
		Bus:      busAdapter{b},
		Presence: p,
		Limiter:  l,
	}
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, svc ws.Services) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，消息频率另由 Redis 限速器把关
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.GET("/rooms", h.ListRooms)
	api.GET("/rooms/:room/messages", h.ListMessages)
	api.POST("/rooms/:room/messages", h.CreateMessage)
	api.DELETE("/rooms/:room/messages/:id", h.DeleteMessage)

	r.GET("/ws/:room", ws.Serve(svc, cfg.HistoryLimit))

	r.Static("/app", "./web")

	return r
}
