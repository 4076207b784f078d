package health

import (
	"context"
	"sync"
	"time"

	"github.com/taoyao-code/telemetry-collector/internal/storage"
)

// SinkChecker 记录存储检查：可探活时 Ping；上次检查以来出现写失败则降级
type SinkChecker struct {
	name       string
	pinger     storage.Pinger // 可为空
	sinkErrors func() uint64

	mu   sync.Mutex
	last uint64
}

// NewSinkChecker sinkErrors 返回累计写失败次数
func NewSinkChecker(name string, pinger storage.Pinger, sinkErrors func() uint64) *SinkChecker {
	return &SinkChecker{name: name, pinger: pinger, sinkErrors: sinkErrors}
}

func (c *SinkChecker) Name() string { return "sink" }

func (c *SinkChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			return unhealthy(start, "sink ping failed", err)
		}
	}

	res := CheckResult{Status: StatusHealthy, Message: "ok", Details: map[string]interface{}{"driver": c.name}}
	if c.sinkErrors != nil {
		total := c.sinkErrors()
		c.mu.Lock()
		delta := total - c.last
		c.last = total
		c.mu.Unlock()
		res.Details["write_errors_total"] = total
		if delta > 0 {
			res.Status = StatusDegraded
			res.Message = "records lost since last check"
			res.Details["write_errors_recent"] = delta
		}
	}
	res.Latency = time.Since(start)
	return res
}
