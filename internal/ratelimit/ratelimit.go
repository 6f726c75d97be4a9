package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter 是基于 Redis 计数器的滑动窗口限速器，按发送方键（room:username）
// 计数。被拒绝的尝试同样计数，刷屏者无法靠重试提前重置窗口。
type Limiter struct {
	rdb    *redis.Client
	max    int64
	window time.Duration
}

func New(rdb *redis.Client, max int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, max: int64(max), window: window}
}

// Allow 原子递增计数器，首次递增时启动窗口。窗口内超过上限返回 false。
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := "rate_limit:" + key
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.max, nil
}
