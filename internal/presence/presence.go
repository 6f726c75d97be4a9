package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker 维护每个房间的在线用户集合。个人键靠 TTL 过期兜底，
// 正常下线走 MarkOffline 立即清理，秒级的陈旧快照是可接受的近似。
type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Tracker {
	return &Tracker{rdb: rdb, ttl: ttl}
}

func userKey(room, username string) string {
	return "presence:" + room + ":" + username
}

func setKey(room string) string {
	return "online:" + room
}

// MarkOnline 标记用户在线：写入带 TTL 的个人键，并把用户加入房间在线集合，
// 集合自身的 TTL 同步刷新。
func (t *Tracker) MarkOnline(ctx context.Context, room, username string) error {
	pipe := t.rdb.Pipeline()
	pipe.SetEx(ctx, userKey(room, username), "online", t.ttl)
	pipe.SAdd(ctx, setKey(room), username)
	pipe.Expire(ctx, setKey(room), t.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkOffline 立即移除个人键与集合成员，不等 TTL。
func (t *Tracker) MarkOffline(ctx context.Context, room, username string) error {
	pipe := t.rdb.Pipeline()
	pipe.Del(ctx, userKey(room, username))
	pipe.SRem(ctx, setKey(room), username)
	_, err := pipe.Exec(ctx)
	return err
}

// OnlineUsers 返回房间当前在线用户快照。
func (t *Tracker) OnlineUsers(ctx context.Context, room string) ([]string, error) {
	return t.rdb.SMembers(ctx, setKey(room)).Result()
}
