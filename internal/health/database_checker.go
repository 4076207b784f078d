package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseChecker PostgreSQL 存储健康检查
type DatabaseChecker struct {
	pool *pgxpool.Pool
}

// NewDatabaseChecker 创建数据库健康检查器
func NewDatabaseChecker(pool *pgxpool.Pool) *DatabaseChecker {
	return &DatabaseChecker{pool: pool}
}

func (c *DatabaseChecker) Name() string { return "database" }

// Check Ping 后按连接池占用判断：>90% 降级，占满不健康
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.pool.Ping(ctx); err != nil {
		return unhealthy(start, "ping failed", err)
	}

	stats := c.pool.Stat()
	utilization := 0.0
	if stats.MaxConns() > 0 {
		utilization = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]interface{}{
			"total_conns":    stats.TotalConns(),
			"acquired_conns": stats.AcquiredConns(),
			"max_conns":      stats.MaxConns(),
			"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
		},
	}
	switch {
	case utilization >= 1.0:
		res.Status, res.Message = StatusUnhealthy, "connection pool exhausted"
	case utilization > 0.9:
		res.Status, res.Message = StatusDegraded, "connection pool near limit"
	}
	res.Latency = time.Since(start)
	return res
}
