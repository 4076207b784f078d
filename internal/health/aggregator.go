package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator 健康检查聚合器
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration // 单个检查的超时
}

// NewAggregator 创建聚合器；timeout<=0 时使用 2s
func NewAggregator(timeout time.Duration, checkers ...Checker) *Aggregator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Aggregator{checkers: checkers, timeout: timeout}
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(c Checker) {
	a.mu.Lock()
	a.checkers = append(a.checkers, c)
	a.mu.Unlock()
}

// CheckAll 并发执行所有检查，每个检查独立超时
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			r := c.Check(cctx)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// Overall 任一 unhealthy 即 unhealthy，否则任一 degraded 即 degraded
func Overall(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report 执行一轮检查并生成报告
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	checks := a.CheckAll(ctx)
	return HealthReport{Status: Overall(checks), Timestamp: time.Now(), Checks: checks}
}

// Ready 降级仍视为就绪，只有 unhealthy 不就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return Overall(a.CheckAll(ctx)) != StatusUnhealthy
}
