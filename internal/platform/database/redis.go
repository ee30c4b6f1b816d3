package database

import (
	"context"
	"fmt"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/config"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

// OpenRedis 初始化与Redis数据库的连接，并用 PING 确认可用。
func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	log.Info("Redis 连接成功", "address", cfg.Address)
	return rdb, nil
}
