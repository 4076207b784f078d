package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常写入
	BreakerOpen                         // 直接拒绝，记录计为丢失
	BreakerHalfOpen                     // 冷却结束，放行一次试探写入
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen 远端存储熔断中
var ErrBreakerOpen = errors.New("sink circuit open")

// BreakerSink 给远端存储（postgres/redis）加写超时与熔断：
// 每次写入最多等待 writeTimeout，超时按失败计；
// 连续失败 threshold 次后进入 Open，cooldown 内的写入立即失败。失败均按 ErrSinkWrite 上报。
type BreakerSink struct {
	Sink

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	trips     int64
	threshold    int
	cooldown     time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	onChange func(from, to BreakerState)
}

// NewBreakerSink threshold<=0 取 5，cooldown<=0 取 10s，writeTimeout<=0 取 2s
func NewBreakerSink(s Sink, threshold int, cooldown, writeTimeout time.Duration) *BreakerSink {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &BreakerSink{Sink: s, threshold: threshold, cooldown: cooldown, writeTimeout: writeTimeout, now: time.Now}
}

// OnStateChange 状态变化回调（在锁外同步调用）
func (b *BreakerSink) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Append 受熔断保护的写入；上游 ctx 不会取消时由 writeTimeout 兜底
func (b *BreakerSink) Append(ctx context.Context, rec *coremodel.Record) error {
	if err := b.before(); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()
	err := b.Sink.Append(wctx, rec)
	if err != nil && !errors.Is(err, ErrSinkWrite) {
		err = fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	b.after(err)
	return err
}

func (b *BreakerSink) before() error {
	b.mu.Lock()
	var from, to BreakerState
	changed := false
	defer func() {
		fn := b.onChange
		b.mu.Unlock()
		if changed && fn != nil {
			fn(from, to)
		}
	}()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return fmt.Errorf("%w: %w", ErrSinkWrite, ErrBreakerOpen)
		}
		from, to, changed = b.state, BreakerHalfOpen, true
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	default:
		// 半开期间只放行一个试探
		if b.probing {
			return fmt.Errorf("%w: %w", ErrSinkWrite, ErrBreakerOpen)
		}
		b.probing = true
		return nil
	}
}

func (b *BreakerSink) after(err error) {
	b.mu.Lock()
	from := b.state
	if err == nil {
		b.failures = 0
		b.probing = false
		b.state = BreakerClosed
	} else {
		b.failures++
		b.probing = false
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			if b.state != BreakerOpen {
				b.trips++
			}
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	}
	to, fn := b.state, b.onChange
	b.mu.Unlock()
	if from != to && fn != nil {
		fn(from, to)
	}
}

// State 当前状态
func (b *BreakerSink) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips 累计熔断次数
func (b *BreakerSink) Trips() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}
