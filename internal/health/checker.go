package health

import (
	"context"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"   // 健康
	StatusDegraded  Status = "degraded"  // 降级：仍在接收，但有记录丢失
	StatusUnhealthy Status = "unhealthy" // 不健康：无法接收或无法落盘
)

// CheckResult 健康检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 健康检查器接口
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

func unhealthy(start time.Time, msg string, err error) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: msg + ": " + err.Error(), Latency: time.Since(start)}
}
