package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
	"github.com/taoyao-code/telemetry-collector/internal/health"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
	"github.com/taoyao-code/telemetry-collector/internal/storage/csvsink"
	pgstorage "github.com/taoyao-code/telemetry-collector/internal/storage/pg"
	redisstorage "github.com/taoyao-code/telemetry-collector/internal/storage/redis"
	"github.com/taoyao-code/telemetry-collector/internal/storage/sqlite"
)

// SinkHandle 打开的记录存储及其附属资源
type SinkHandle struct {
	Driver   string
	TrialID  string
	Sink     storage.Sink
	Loader   storage.Loader
	Pinger   storage.Pinger
	Checkers []health.Checker // 驱动特有的连接池检查

	closers []func() error
}

// Close 关闭存储及其连接
func (h *SinkHandle) Close() error {
	var errs []error
	if h.Sink != nil {
		errs = append(errs, h.Sink.Close())
	}
	for _, c := range h.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// TrialID 配置为空时生成新的试验ID
func TrialID(configured string) string {
	if configured != "" {
		return configured
	}
	return uuid.NewString()
}

// OpenSink 按 sink.driver 打开记录存储
func OpenSink(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) (*SinkHandle, error) {
	h := &SinkHandle{Driver: cfg.Sink.Driver, TrialID: TrialID(cfg.Sink.TrialID)}

	switch cfg.Sink.Driver {
	case "csv":
		s, err := csvsink.Open(cfg.Sink.Path, cfg.Sink.Fsync)
		if err != nil {
			return nil, err
		}
		h.Sink, h.Loader, h.Pinger = s, s, s

	case "sqlite":
		s, err := sqlite.Open(cfg.Sink.Path, h.TrialID)
		if err != nil {
			return nil, err
		}
		h.Sink, h.Loader, h.Pinger = s, s, s

	case "postgres":
		pool, err := ConnectDBAndMigrate(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		repo := &pgstorage.Repository{Pool: pool, TrialID: h.TrialID}
		h.Sink, h.Loader, h.Pinger = guard(repo, cfg.Sink, log), repo, repo
		h.Checkers = append(h.Checkers, health.NewDatabaseChecker(pool))

	case "redis":
		client, err := NewRedisClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		s := redisstorage.NewStreamSink(client.Client, cfg.Redis.StreamPrefix, h.TrialID)
		h.Sink, h.Loader, h.Pinger = guard(s, cfg.Sink, log), s, s
		h.Checkers = append(h.Checkers, health.NewRedisChecker(client))
		h.closers = append(h.closers, client.Close)

	default:
		return nil, fmt.Errorf("unsupported sink driver %q", cfg.Sink.Driver)
	}

	log.Info("record sink opened",
		zap.String("driver", h.Driver),
		zap.String("path", cfg.Sink.Path),
		zap.String("trial_id", h.TrialID))
	return h, nil
}

// guard 远端存储加写超时与熔断，状态变化写日志
func guard(s storage.Sink, cfg cfgpkg.SinkConfig, log *zap.Logger) storage.Sink {
	b := storage.NewBreakerSink(s, cfg.BreakerThreshold, cfg.BreakerCooldown, cfg.WriteTimeout)
	b.OnStateChange(func(from, to storage.BreakerState) {
		log.Warn("sink circuit state changed",
			zap.String("driver", cfg.Driver),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	})
	return b
}
