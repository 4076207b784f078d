package sensor

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/protocol/telemetry"
)

// Config 模拟传感器参数
type Config struct {
	Target         string        // host:port
	DeviceID       uint16
	Interval       time.Duration // 平均发送间隔
	Jitter         float64       // 间隔抖动比例，0.1 表示 ±10%
	HeartbeatRatio float64       // 心跳帧比例
	Readings       int           // 每个 DATA 帧的读数个数
	MinReading     float32
	MaxReading     float32
	Count          int // 发送帧数上限（不含 INIT），0 表示直到取消
	Seed           int64
}

// Defaults 补齐默认值
func (c Config) Defaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = 0.1
	}
	if c.HeartbeatRatio < 0 || c.HeartbeatRatio > 1 {
		c.HeartbeatRatio = 0.2
	}
	if c.Readings <= 0 {
		c.Readings = 5
	}
	if c.Readings > telemetry.MaxBatchSize {
		c.Readings = telemetry.MaxBatchSize
	}
	if c.MaxReading <= c.MinReading {
		c.MinReading, c.MaxReading = 20, 30
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano() + int64(c.DeviceID)
	}
	return c
}

// Sensor 单设备发送端：先发 INIT，此后按抖动间隔发送 DATA 或 HEARTBEAT。
// 每发送一帧序号加一（包括 INIT 与心跳），序号按 uint16 回绕。
type Sensor struct {
	cfg     Config
	rnd     *rand.Rand
	seq     uint16
	log     *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// New 创建传感器
func New(cfg Config, log *zap.Logger) *Sensor {
	cfg = cfg.Defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Sensor{
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(cfg.Seed)),
		log:     log.With(zap.Uint16("device_id", cfg.DeviceID)),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		now:     time.Now,
	}
}

// Init 构造 INIT 帧
func (s *Sensor) Init() []byte {
	b := telemetry.BuildControl(telemetry.MsgInit, s.cfg.DeviceID, s.seq, coremodel.TruncMillis(s.now()))
	s.seq++
	return b
}

// Next 构造下一帧
func (s *Sensor) Next() ([]byte, telemetry.MsgType) {
	ts := coremodel.TruncMillis(s.now())
	seq := s.seq
	s.seq++
	if s.rnd.Float64() < s.cfg.HeartbeatRatio {
		return telemetry.BuildControl(telemetry.MsgHeartbeat, s.cfg.DeviceID, seq, ts), telemetry.MsgHeartbeat
	}
	readings := make([]float32, s.cfg.Readings)
	span := s.cfg.MaxReading - s.cfg.MinReading
	for i := range readings {
		readings[i] = s.cfg.MinReading + s.rnd.Float32()*span
	}
	return telemetry.BuildData(s.cfg.DeviceID, seq, ts, readings), telemetry.MsgData
}

// nextInterval 平均间隔加 ±Jitter 比例的均匀抖动
func (s *Sensor) nextInterval() time.Duration {
	j := (s.rnd.Float64()*2 - 1) * s.cfg.Jitter
	return time.Duration(float64(s.cfg.Interval) * (1 + j))
}

// Run 发送直到 Count 达到或 ctx 取消；返回已发送帧数（含 INIT）
func (s *Sensor) Run(ctx context.Context) (int, error) {
	conn, err := net.Dial("udp", s.cfg.Target)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", s.cfg.Target, err)
	}
	defer conn.Close()
	return s.send(ctx, conn)
}

func (s *Sensor) send(ctx context.Context, conn net.Conn) (int, error) {
	sent := 0
	if _, err := conn.Write(s.Init()); err != nil {
		return sent, fmt.Errorf("send init: %w", err)
	}
	sent++
	s.log.Info("sensor started", zap.String("target", s.cfg.Target), zap.Duration("interval", s.cfg.Interval))

	// 首个 token 已被 INIT 消耗
	s.limiter.Allow()
	for n := 0; s.cfg.Count == 0 || n < s.cfg.Count; n++ {
		s.limiter.SetLimit(rate.Every(s.nextInterval()))
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return sent, nil
			}
			return sent, err
		}
		frame, typ := s.Next()
		if _, err := conn.Write(frame); err != nil {
			// UDP 发送失败不重试，序号照常前进，接收端会把它记为缺失
			s.log.Warn("send failed", zap.Stringer("type", typ), zap.Error(err))
			continue
		}
		sent++
		s.log.Debug("frame sent", zap.Stringer("type", typ), zap.Uint16("seq", s.seq-1))
	}
	return sent, nil
}

// Fleet 并发运行 count 个设备，设备号从 cfg.DeviceID 起递增
func Fleet(ctx context.Context, cfg Config, count int, log *zap.Logger) (int, error) {
	if count <= 0 {
		count = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	totals := make([]int, count)
	for i := 0; i < count; i++ {
		c := cfg
		c.DeviceID = cfg.DeviceID + uint16(i)
		if cfg.Seed != 0 {
			c.Seed = cfg.Seed + int64(i)
		}
		g.Go(func() error {
			n, err := New(c, log).Run(ctx)
			totals[i] = n
			return err
		})
	}
	err := g.Wait()
	sum := 0
	for _, n := range totals {
		sum += n
	}
	return sum, err
}
