package health

import (
	"context"
	"time"
)

// UDPChecker 接收循环是否仍在运行
type UDPChecker struct {
	done  func() <-chan struct{}
	addr  func() string
	stats func() map[string]interface{}
}

// NewUDPChecker done 为接收循环退出信号；stats 可为空
func NewUDPChecker(addr func() string, done func() <-chan struct{}, stats func() map[string]interface{}) *UDPChecker {
	return &UDPChecker{addr: addr, done: done, stats: stats}
}

func (c *UDPChecker) Name() string { return "udp" }

func (c *UDPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]interface{}{}
	if c.addr != nil {
		details["addr"] = c.addr()
	}
	if c.stats != nil {
		for k, v := range c.stats() {
			details[k] = v
		}
	}

	var done <-chan struct{}
	if c.done != nil {
		done = c.done()
	}
	if done == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "listener not started", Details: details, Latency: time.Since(start)}
	}
	select {
	case <-done:
		return CheckResult{Status: StatusUnhealthy, Message: "receive loop stopped", Details: details, Latency: time.Since(start)}
	default:
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Details: details, Latency: time.Since(start)}
}
