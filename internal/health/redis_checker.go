package health

import (
	"context"
	"time"

	redisstorage "github.com/taoyao-code/telemetry-collector/internal/storage/redis"
)

// RedisChecker Redis Stream 存储健康检查
type RedisChecker struct {
	client *redisstorage.Client
}

// NewRedisChecker 创建Redis健康检查器
func NewRedisChecker(client *redisstorage.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

// Check Ping 并附带连接池统计；获取连接出现超时视为降级
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.HealthCheck(ctx); err != nil {
		return unhealthy(start, "ping failed", err)
	}
	stats := c.client.PoolStats()
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]interface{}{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"timeouts":    stats.Timeouts,
		},
	}
	if stats.Timeouts > 0 {
		res.Status, res.Message = StatusDegraded, "connection pool timeouts"
	}
	res.Latency = time.Since(start)
	return res
}
