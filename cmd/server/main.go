package main

import (
	"context"
	"time"

	"chatapi/internal/bus"
	"chatapi/internal/cache"
	"chatapi/internal/config"
	clog "chatapi/internal/log"
	"chatapi/internal/presence"
	"chatapi/internal/ratelimit"
	"chatapi/internal/server"
	"chatapi/internal/store"
	"chatapi/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接 MongoDB 与 Redis 并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.Connect(ctx, cfg.MongoURL, cfg.MongoDB)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect")
	}
	log.Info().Str("db", cfg.MongoDB).Msg("mongo connected")

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	log.Info().Str("url", cfg.RedisURL).Msg("redis connected")

	registry := ws.NewRegistry()
	pres := presence.New(rdb, time.Duration(cfg.PresenceTTLSeconds)*time.Second)
	svc := server.NewServices(
		registry,
		st,
		cache.New(rdb, time.Duration(cfg.CacheTTLHours)*time.Hour),
		bus.New(rdb),
		pres,
		ratelimit.New(rdb, cfg.RateLimitMax, time.Duration(cfg.RateLimitWindowSeconds)*time.Second),
	)

	r := server.SetupRouter(cfg, server.NewHandler(st, registry, pres, rdb), svc)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
