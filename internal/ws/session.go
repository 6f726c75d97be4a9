package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatapi/internal/metrics"
	"chatapi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// busPollTimeout 限定单次总线轮询的等待时长，保证中继循环能及时响应取消。
const busPollTimeout = time.Second

// History 是会话对持久存储的消息视图。
type History interface {
	Recent(ctx context.Context, room string, limit int64) ([]models.Message, error)
	Insert(ctx context.Context, room, username, content string) (models.Message, error)
}

// RecentCache 是每房间最近消息环的读写入口。缓存缺失不是错误。
type RecentCache interface {
	Append(ctx context.Context, room string, msg models.Message) error
	Recent(ctx context.Context, room string, limit int64) ([]models.Message, error)
}

// Subscription 是会话对房间频道的一份订阅。
type Subscription interface {
	Next(timeout time.Duration) (models.Message, bool, error)
	Close() error
}

// Bus 把接受的消息分发给持有同房间连接的其他进程。
type Bus interface {
	Subscribe(ctx context.Context, room string) (Subscription, error)
	Publish(ctx context.Context, room string, msg models.Message) (int64, error)
}

// Presence 维护每房间的在线用户集合。
type Presence interface {
	MarkOnline(ctx context.Context, room, username string) error
	MarkOffline(ctx context.Context, room, username string) error
	OnlineUsers(ctx context.Context, room string) ([]string, error)
}

// Limiter 按发送方键限制消息频率。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Services 聚合一次会话所依赖的全部外部服务。
type Services struct {
	Registry *Registry
	History  History
	Cache    RecentCache
	Bus      Bus
	Presence Presence
	Limiter  Limiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 返回房间 WebSocket 端点的处理函数，驱动整个会话生命周期：
// 接纳连接、回放历史、订阅总线、收发循环、幂等清理。
func Serve(svc Services, historyLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		room := strings.TrimSpace(c.Param("room"))
		if room == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		s := &Session{
			svc:          svc,
			room:         room,
			client:       newClient(conn),
			historyLimit: int64(historyLimit),
		}
		s.run()
	}
}

// Session 驱动单个连接从接纳到清理的状态机。
type Session struct {
	svc          Services
	room         string
	client       *Client
	historyLimit int64

	// 会话身份，在第一条有效消息到达时固定
	username string

	sub          Subscription
	cancelRelay  context.CancelFunc
	teardownOnce sync.Once
}

func (s *Session) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room", s.room).Interface("panic", r).Msg("session panic")
		}
		s.teardown()
	}()

	s.svc.Registry.Admit(s.room, s.client)
	go s.client.writePump()

	ctx := context.Background()
	s.replayHistory(ctx)

	sub, err := s.svc.Bus.Subscribe(ctx, s.room)
	if err != nil {
		log.Error().Err(err).Str("room", s.room).Msg("bus subscribe")
		return
	}
	s.sub = sub

	relayCtx, cancel := context.WithCancel(ctx)
	s.cancelRelay = cancel
	go s.relay(relayCtx)

	s.readLoop(ctx)
}

// replayHistory 优先从缓存回放最近消息，缓存缺失时回退到 Store，
// 并把查到的记录按时间顺序回填缓存，供后续连接命中。
func (s *Session) replayHistory(ctx context.Context) {
	msgs, err := s.svc.Cache.Recent(ctx, s.room, s.historyLimit)
	if err != nil {
		log.Warn().Err(err).Str("room", s.room).Msg("cache read")
	}
	if err == nil && len(msgs) > 0 {
		metrics.CacheHitsTotal.Inc()
		s.client.sendJSON(historyFrame{Type: "history", Items: msgs, Room: s.room, Source: "cache"})
		return
	}

	metrics.CacheMissesTotal.Inc()
	msgs, err = s.svc.History.Recent(ctx, s.room, s.historyLimit)
	if err != nil {
		log.Error().Err(err).Str("room", s.room).Msg("history query")
		msgs = nil
	}
	for _, m := range msgs {
		if err := s.svc.Cache.Append(ctx, s.room, m); err != nil {
			log.Warn().Err(err).Str("room", s.room).Msg("cache backfill")
			break
		}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	s.client.sendJSON(historyFrame{Type: "history", Items: msgs, Room: s.room, Source: "database"})
}

// relay 把总线上其他进程发布的消息转发给本连接。轮询超时不是错误，
// 只表示这一轮没有消息；订阅真正失效时结束整个会话，让客户端重连，
// 避免连接停留在收不到跨进程消息的半死状态。
func (s *Session) relay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok, err := s.sub.Next(busPollTimeout)
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Warn().Err(err).Str("room", s.room).Msg("bus subscription lost")
				s.teardown()
			}
			return
		}
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.client.sendJSON(messageFrame{Type: "message", Item: msg})
	}
}

func (s *Session) readLoop(ctx context.Context) {
	conn := s.client.conn
	conn.SetReadLimit(1 << 20) // 1MB
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in models.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.client.sendJSON(newErrorFrame("invalid message", err.Error()))
			continue
		}
		if err := in.Validate(); err != nil {
			s.client.sendJSON(newErrorFrame("invalid message", err.Error()))
			continue
		}
		s.handleMessage(ctx, in)
	}
}

func (s *Session) handleMessage(ctx context.Context, in models.Inbound) {
	// 第一条有效消息确立会话身份并广播上线事件
	if s.username == "" {
		s.username = in.Username
		if err := s.svc.Presence.MarkOnline(ctx, s.room, s.username); err != nil {
			log.Warn().Err(err).Str("room", s.room).Str("username", s.username).Msg("presence online")
		}
		s.broadcastPresence("user_joined", s.username)
	}

	// 限流键使用会话身份而非帧里的 username 字段，防止换名绕过计数
	allowed, err := s.svc.Limiter.Allow(ctx, s.room+":"+s.username)
	if err != nil {
		// 限流器故障时放行，不把基础设施问题转嫁给客户端
		log.Warn().Err(err).Str("room", s.room).Msg("rate limiter")
		allowed = true
	}
	if !allowed {
		metrics.WsRateLimitedTotal.Inc()
		s.client.sendJSON(newErrorFrame("too many messages, slow down", ""))
		return
	}

	msg, err := s.svc.History.Insert(ctx, s.room, in.Username, in.Content)
	if err != nil {
		log.Error().Err(err).Str("room", s.room).Msg("message insert")
		return
	}
	if err := s.svc.Cache.Append(ctx, s.room, msg); err != nil {
		log.Warn().Err(err).Str("room", s.room).Msg("cache append")
	}
	if _, err := s.svc.Bus.Publish(ctx, s.room, msg); err != nil {
		log.Warn().Err(err).Str("room", s.room).Msg("bus publish")
	} else {
		metrics.BusPublishedTotal.Inc()
	}

	if b, err := json.Marshal(messageFrame{Type: "message", Item: msg}); err == nil {
		s.svc.Registry.Broadcast(s.room, b)
	}
	metrics.WsMessagesTotal.Inc()
}

func (s *Session) broadcastPresence(event, username string) {
	online, err := s.svc.Presence.OnlineUsers(context.Background(), s.room)
	if err != nil {
		log.Warn().Err(err).Str("room", s.room).Msg("presence snapshot")
	}
	if online == nil {
		online = []string{}
	}
	b, err := json.Marshal(presenceFrame{Type: event, Username: username, OnlineUsers: online})
	if err != nil {
		return
	}
	s.svc.Registry.Broadcast(s.room, b)
}

// teardown 清理会话的全部痕迹：停掉中继、退订总线、下线身份并广播
// 离开事件、把连接移出 Registry。可安全重复调用。
func (s *Session) teardown() {
	s.teardownOnce.Do(s.doTeardown)
}

func (s *Session) doTeardown() {
	if s.cancelRelay != nil {
		s.cancelRelay()
	}
	if s.sub != nil {
		_ = s.sub.Close()
	}
	if s.username != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.svc.Presence.MarkOffline(ctx, s.room, s.username); err != nil {
			log.Warn().Err(err).Str("room", s.room).Str("username", s.username).Msg("presence offline")
		}
		cancel()
		s.broadcastPresence("user_left", s.username)
	}
	s.svc.Registry.Remove(s.room, s.client)
	s.client.Close()
	log.Debug().Str("room", s.room).Str("username", s.username).Msg("session closed")
}
