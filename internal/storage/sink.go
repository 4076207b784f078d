package storage

import (
	"context"
	"errors"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

// ErrSinkWrite 记录持久化失败（记录视为丢失，接收循环继续）
var ErrSinkWrite = errors.New("sink write failure")

// Sink 追加式记录存储
// 约束：
// - Append 返回前记录必须已落盘（或已被远端确认），不允许缓冲到下一次写入
// - 实现需自行串行化并发写入
type Sink interface {
	Append(ctx context.Context, rec *coremodel.Record) error
	Close() error
}

// Loader 读取某次试验的完整记录集（离线分析用）
type Loader interface {
	Load(ctx context.Context, trialID string) ([]coremodel.Record, error)
}

// Pinger 可选的健康探测能力
type Pinger interface {
	Ping(ctx context.Context) error
}

// Discard 丢弃所有记录的 Sink（测试与压测用）
type Discard struct{}

func (Discard) Append(context.Context, *coremodel.Record) error { return nil }
func (Discard) Close() error                                    { return nil }
