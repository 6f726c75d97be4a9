package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                   string
	Env                    string
	LogLevel               string
	MongoURL               string
	MongoDB                string
	RedisURL               string
	CacheTTLHours          int
	RateLimitMax           int
	RateLimitWindowSeconds int
	PresenceTTLSeconds     int
	HistoryLimit           int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量读取配置，缺省值面向本地开发环境。
func Load() Config {
	return Config{
		Port:                   getenv("APP_PORT", "8080"),
		Env:                    getenv("APP_ENV", "dev"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		MongoURL:               getenv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:                getenv("MONGO_DB", "chatdb"),
		RedisURL:               getenv("REDIS_URL", "redis://localhost:6379"),
		CacheTTLHours:          getenvInt("CACHE_TTL_HOURS", 24),
		RateLimitMax:           getenvInt("RATE_LIMIT_MAX", 30),
		RateLimitWindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		PresenceTTLSeconds:     getenvInt("PRESENCE_TTL_SECONDS", 30),
		HistoryLimit:           getenvInt("HISTORY_LIMIT", 20),
	}
}
