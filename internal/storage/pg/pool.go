package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
)

// NewPool 创建 pgx 连接池并探活
func NewPool(ctx context.Context, cfg cfgpkg.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	// SQL 追踪仅在 debug 级别输出，记录写入路径每帧一次，避免刷屏
	if logger != nil && cfg.TraceSQL {
		pcfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   &pgxZapLogger{logger: logger},
			LogLevel: tracelog.LogLevelTrace,
		}
	}

	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		pcfg.MaxConns = 4
	}
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(cfg.MaxIdleConns)
	} else {
		pcfg.MinConns = 1
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	} else {
		pcfg.MaxConnLifetime = time.Hour
	}
	pcfg.MaxConnIdleTime = 30 * time.Minute
	pcfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// pgxZapLogger 将 pgx tracelog 适配到 zap
type pgxZapLogger struct {
	logger *zap.Logger
}

func (l *pgxZapLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		l.logger.Debug("[SQL] "+msg, fields...)
	case tracelog.LogLevelInfo:
		l.logger.Info(msg, fields...)
	case tracelog.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	case tracelog.LogLevelError:
		l.logger.Error(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}
}
