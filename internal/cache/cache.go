package cache

import (
	"context"
	"encoding/json"
	"time"

	"chatapi/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// MaxEntries 是每个房间保留的最近消息条数上限。
const MaxEntries = 50

// Cache 基于 Redis List 维护每个房间的最近消息环。Store 才是权威数据源，
// 缓存缺失不是错误，由调用方回退到数据库。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(room string) string {
	return "chat:" + room + ":recent"
}

// Append 把消息推到房间列表头部，截断到 MaxEntries 并刷新 TTL。
func (c *Cache) Append(ctx context.Context, room string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	k := key(room)
	pipe := c.rdb.Pipeline()
	pipe.LPush(ctx, k, data)
	pipe.LTrim(ctx, k, 0, MaxEntries-1)
	pipe.Expire(ctx, k, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent 读取房间最近的 limit 条消息，按时间升序返回。
// 反序列化失败的条目直接跳过，不让个别脏数据拖垮整次读取。
func (c *Cache) Recent(ctx context.Context, room string, limit int64) ([]models.Message, error) {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	raw, err := c.rdb.LRange(ctx, key(room), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Warn().Err(err).Str("room", room).Msg("cache entry malformed, skipping")
			continue
		}
		msgs = append(msgs, msg)
	}

	// 列表内部是最新在前，反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
