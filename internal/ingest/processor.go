package ingest

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/metrics"
	"github.com/taoyao-code/telemetry-collector/internal/protocol/telemetry"
	"github.com/taoyao-code/telemetry-collector/internal/sequence"
	"github.com/taoyao-code/telemetry-collector/internal/session"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
)

// 丢弃原因（指标标签）
const (
	ReasonTooShort  = "too_short"
	ReasonChecksum  = "checksum"
	ReasonMalformed = "malformed"
)

// Options 处理器依赖；Sessions/Metrics 可为空
type Options struct {
	Registry *sequence.Registry
	Sink     storage.Sink
	Sessions *session.Manager
	Metrics  *metrics.AppMetrics
	Logger   *zap.Logger
	TrialID  string
}

// Stats 处理计数快照
type Stats struct {
	Datagrams        uint64 `json:"datagrams"`
	Classified       uint64 `json:"classified"` // 通过帧头校验并完成分类
	Records          uint64 `json:"records"`    // 已成功落盘
	DiscardTooShort  uint64 `json:"discard_too_short"`
	DiscardChecksum  uint64 `json:"discard_checksum"`
	DiscardMalformed uint64 `json:"discard_malformed"`
	PayloadTruncated uint64 `json:"payload_truncated"`
	SinkErrors       uint64 `json:"sink_errors"`
}

// Discarded 丢弃帧合计
func (s Stats) Discarded() uint64 {
	return s.DiscardTooShort + s.DiscardChecksum + s.DiscardMalformed
}

// Processor 单个数据报的解码 -> 分类 -> 落盘流水线
// 可被多个接收协程并发调用：分类状态由 Registry 分片锁保护，落盘串行化由 Sink 负责
type Processor struct {
	registry *sequence.Registry
	sink     storage.Sink
	sessions *session.Manager
	metrics  *metrics.AppMetrics
	log      *zap.Logger
	trialID  string

	datagrams, classified, records          atomic.Uint64
	tooShort, checksum, malformed, truncate atomic.Uint64
	sinkErrors                              atomic.Uint64
}

// NewProcessor 创建处理器
func NewProcessor(opts Options) *Processor {
	reg := opts.Registry
	if reg == nil {
		reg = sequence.NewRegistry(sequence.DefaultShards, sequence.DefaultWindow)
	}
	sink := opts.Sink
	if sink == nil {
		sink = storage.Discard{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		registry: reg,
		sink:     sink,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		log:      log,
		trialID:  opts.TrialID,
	}
}

// Registry 分类状态
func (p *Processor) Registry() *sequence.Registry { return p.registry }

// Handle 处理一个数据报。
// 帧头非法时返回 (nil, 解码错误)，不产生记录；
// 落盘失败时返回记录与包装了 storage.ErrSinkWrite 的错误，记录视为丢失。
func (p *Processor) Handle(ctx context.Context, datagram []byte, arrival time.Time) (*coremodel.Record, error) {
	p.datagrams.Add(1)
	if m := p.metrics; m != nil {
		m.DatagramsReceived.Inc()
		m.BytesReceived.Add(float64(len(datagram)))
	}

	start := time.Now()
	frame, err := telemetry.Decode(datagram)
	if frame == nil {
		p.discard(err, len(datagram))
		return nil, err
	}
	if err != nil {
		// 载荷不足不影响分类
		p.truncate.Add(1)
		if m := p.metrics; m != nil {
			m.PayloadTruncated.Inc()
		}
		p.log.Warn("payload truncated",
			zap.Uint16("device_id", frame.DeviceID),
			zap.Uint16("seq", frame.Seq),
			zap.Uint8("batch", frame.BatchSize),
			zap.Int("len", len(datagram)))
	}

	out := p.registry.Classify(frame.DeviceID, int(frame.Seq))
	cost := time.Since(start)

	rec := &coremodel.Record{
		TrialID:        p.trialID,
		DeviceID:       frame.DeviceID,
		Seq:            frame.Seq,
		MsgType:        uint8(frame.Type),
		SendTimestamp:  frame.SendTimestamp,
		ArrivalTime:    arrival,
		Duplicate:      out.Duplicate,
		Gap:            out.Gap,
		GapSize:        out.GapSize,
		OutOfOrder:     out.OutOfOrder,
		ProcessingCost: cost,
	}
	p.classified.Add(1)
	p.observe(frame, out, rec)

	if err := p.sink.Append(ctx, rec); err != nil {
		p.sinkErrors.Add(1)
		if m := p.metrics; m != nil {
			m.SinkErrors.Inc()
		}
		p.log.Error("sink write failed, record lost",
			zap.Uint16("device_id", rec.DeviceID),
			zap.Uint16("seq", rec.Seq),
			zap.Error(err))
		if !errors.Is(err, storage.ErrSinkWrite) {
			err = errors.Join(storage.ErrSinkWrite, err)
		}
		return rec, err
	}
	p.records.Add(1)
	return rec, nil
}

func (p *Processor) discard(err error, n int) {
	reason := ReasonMalformed
	switch {
	case errors.Is(err, telemetry.ErrTooShort):
		reason = ReasonTooShort
		p.tooShort.Add(1)
	case errors.Is(err, telemetry.ErrChecksumMismatch):
		reason = ReasonChecksum
		p.checksum.Add(1)
	default:
		p.malformed.Add(1)
	}
	if m := p.metrics; m != nil {
		m.FramesDiscarded.WithLabelValues(reason).Inc()
	}
	p.log.Warn("frame discarded", zap.String("reason", reason), zap.Int("len", n), zap.Error(err))
}

func (p *Processor) observe(frame *telemetry.Frame, out sequence.Outcome, rec *coremodel.Record) {
	if p.sessions != nil {
		p.sessions.OnFrame(frame.DeviceID, rec.ArrivalTime)
		if frame.IsHeartbeat() {
			p.sessions.OnHeartbeat(frame.DeviceID, rec.ArrivalTime)
		}
	}
	if m := p.metrics; m != nil {
		m.RecordsClassified.WithLabelValues(out.Class()).Inc()
		if out.Gap {
			m.MissingFrames.Add(float64(out.GapSize))
		}
		m.ProcessingSeconds.Observe(rec.ProcessingCost.Seconds())
		m.DevicesTracked.Set(float64(p.registry.Len()))
	}

	switch {
	case out.Duplicate:
		p.log.Info("duplicate frame", zap.Uint16("device_id", frame.DeviceID), zap.Uint16("seq", frame.Seq))
	case out.Gap:
		p.log.Info("sequence gap",
			zap.Uint16("device_id", frame.DeviceID),
			zap.Uint16("seq", frame.Seq),
			zap.Int("missing", out.GapSize))
	case out.OutOfOrder:
		p.log.Info("out of order frame",
			zap.Uint16("device_id", frame.DeviceID),
			zap.Uint16("seq", frame.Seq),
			zap.Int("highest", out.Highest))
	}
	if out.Wrapped {
		p.log.Info("sequence wrapped",
			zap.Uint16("device_id", frame.DeviceID),
			zap.Uint16("seq", frame.Seq))
	}
	if frame.IsData() && len(frame.Readings) > 0 {
		if ce := p.log.Check(zap.DebugLevel, "readings"); ce != nil {
			ce.Write(
				zap.Uint16("device_id", frame.DeviceID),
				zap.Uint16("seq", frame.Seq),
				zap.Float64("mean", mean(frame.Readings)),
				zap.Float32s("values", frame.Readings))
		}
	}
}

// Stats 返回当前计数
func (p *Processor) Stats() Stats {
	return Stats{
		Datagrams:        p.datagrams.Load(),
		Classified:       p.classified.Load(),
		Records:          p.records.Load(),
		DiscardTooShort:  p.tooShort.Load(),
		DiscardChecksum:  p.checksum.Load(),
		DiscardMalformed: p.malformed.Load(),
		PayloadTruncated: p.truncate.Load(),
		SinkErrors:       p.sinkErrors.Load(),
	}
}

func mean(vs []float32) float64 {
	if len(vs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range vs {
		sum += float64(v)
	}
	return sum / float64(len(vs))
}
