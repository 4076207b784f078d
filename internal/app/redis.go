package app

import (
	"context"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
	redisstorage "github.com/taoyao-code/telemetry-collector/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端
func NewRedisClient(ctx context.Context, cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	client, err := redisstorage.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}
