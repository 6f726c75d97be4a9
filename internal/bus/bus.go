package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"time"

	"chatapi/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus 基于 Redis 发布订阅做跨进程消息分发。本进程广播与总线分发是两条
// 独立路径：前者即时投递本地连接，后者把消息带给持有同房间连接的其他副本。
type Bus struct {
	rdb    *redis.Client
	origin string
}

// envelope 给每条负载打上发布方实例标记，订阅端据此跳过本进程发出的消息，
// 避免本地连接收到重复副本。
type envelope struct {
	Origin string         `json:"origin"`
	Item   models.Message `json:"item"`
}

func New(rdb *redis.Client) *Bus {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return &Bus{rdb: rdb, origin: hex.EncodeToString(buf)}
}

func channel(room string) string {
	return "chat:" + room
}

// Publish 把消息发布到房间频道，返回收到消息的订阅者数量。
func (b *Bus) Publish(ctx context.Context, room string, msg models.Message) (int64, error) {
	data, err := json.Marshal(envelope{Origin: b.origin, Item: msg})
	if err != nil {
		return 0, err
	}
	n, err := b.rdb.Publish(ctx, channel(room), data).Result()
	if err != nil {
		return 0, err
	}
	log.Debug().Str("room", room).Int64("subscribers", n).Msg("bus publish")
	return n, nil
}

// Subscribe 订阅房间频道，每个会话持有一份独立订阅。
func (b *Bus) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel(room))
	// 确认订阅已生效，失败时及时暴露而不是静默丢消息
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return &Subscription{pubsub: pubsub, origin: b.origin}, nil
}

// Subscription 是单个会话对房间频道的订阅。
type Subscription struct {
	pubsub *redis.PubSub
	origin string
}

// Next 在 timeout 内等待下一条来自其他进程的消息。超时、本进程回环与
// 无法解析的负载都返回 ok=false 而非错误，中继循环据此继续轮询。
func (s *Subscription) Next(timeout time.Duration) (models.Message, bool, error) {
	raw, err := s.pubsub.ReceiveTimeout(context.Background(), timeout)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return models.Message{}, false, nil
		}
		return models.Message{}, false, err
	}

	msg, ok := raw.(*redis.Message)
	if !ok {
		// 订阅确认等控制帧
		return models.Message{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("bus payload malformed, skipping")
		return models.Message{}, false, nil
	}
	if env.Origin == s.origin {
		return models.Message{}, false, nil
	}
	return env.Item, true, nil
}

// Close 退订并释放订阅连接，可安全重复调用。
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
