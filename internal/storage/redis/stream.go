package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
)

// StreamSink 以 Redis Stream 保存分类记录，每次试验一个 stream：<prefix>:<trialID>
// XADD 返回即视为已被服务端确认；stream 不做 MAXLEN 裁剪，离线分析需要完整记录
type StreamSink struct {
	rdb     *redis.Client
	prefix  string
	trialID string
}

// NewStreamSink 创建 Stream 存储
func NewStreamSink(rdb *redis.Client, prefix, trialID string) *StreamSink {
	if prefix == "" {
		prefix = "telemetry:records"
	}
	return &StreamSink{rdb: rdb, prefix: prefix, trialID: trialID}
}

// StreamKey 返回试验对应的 stream 键
func (s *StreamSink) StreamKey(trialID string) string {
	return s.prefix + ":" + trialID
}

// Append 追加一条记录
func (s *StreamSink) Append(ctx context.Context, rec *coremodel.Record) error {
	trial := rec.TrialID
	if trial == "" {
		trial = s.trialID
	}
	args := &redis.XAddArgs{
		Stream: s.StreamKey(trial),
		Values: encodeValues(rec),
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSinkWrite, err)
	}
	return nil
}

// Load 按写入顺序读取试验全部记录
func (s *StreamSink) Load(ctx context.Context, trialID string) ([]coremodel.Record, error) {
	msgs, err := s.rdb.XRange(ctx, s.StreamKey(trialID), "-", "+").Result()
	if err != nil {
		return nil, err
	}
	out := make([]coremodel.Record, 0, len(msgs))
	for _, m := range msgs {
		rec, err := decodeValues(m.Values)
		if err != nil {
			return nil, fmt.Errorf("stream entry %s: %w", m.ID, err)
		}
		rec.TrialID = trialID
		out = append(out, rec)
	}
	return out, nil
}

// Ping 探活
func (s *StreamSink) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close 客户端由调用方持有，这里不关闭
func (s *StreamSink) Close() error { return nil }

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func encodeValues(rec *coremodel.Record) map[string]interface{} {
	return map[string]interface{}{
		"device_id":         strconv.FormatUint(uint64(rec.DeviceID), 10),
		"seq":               strconv.FormatUint(uint64(rec.Seq), 10),
		"msg_type":          strconv.FormatUint(uint64(rec.MsgType), 10),
		"timestamp":         strconv.FormatUint(uint64(rec.SendTimestamp), 10),
		"arrival_us":        strconv.FormatInt(rec.ArrivalTime.UnixMicro(), 10),
		"duplicate_flag":    flag(rec.Duplicate),
		"gap_flag":          flag(rec.Gap),
		"gap_size":          strconv.Itoa(rec.GapSize),
		"out_of_order_flag": flag(rec.OutOfOrder),
		"cpu_ns":            strconv.FormatInt(int64(rec.ProcessingCost), 10),
	}
}

func decodeValues(v map[string]interface{}) (coremodel.Record, error) {
	var rec coremodel.Record
	get := func(k string) (string, error) {
		raw, ok := v[k]
		if !ok {
			return "", fmt.Errorf("missing field %q", k)
		}
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("field %q: unexpected type %T", k, raw)
		}
		return s, nil
	}
	uintField := func(k string, bits int) (uint64, error) {
		s, err := get(k)
		if err != nil {
			return 0, err
		}
		return strconv.ParseUint(s, 10, bits)
	}
	intField := func(k string) (int64, error) {
		s, err := get(k)
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	boolField := func(k string) (bool, error) {
		s, err := get(k)
		if err != nil {
			return false, err
		}
		return s == "1", nil
	}

	dev, err := uintField("device_id", 16)
	if err != nil {
		return rec, err
	}
	seq, err := uintField("seq", 16)
	if err != nil {
		return rec, err
	}
	mt, err := uintField("msg_type", 8)
	if err != nil {
		return rec, err
	}
	ts, err := uintField("timestamp", 32)
	if err != nil {
		return rec, err
	}
	arrival, err := intField("arrival_us")
	if err != nil {
		return rec, err
	}
	gapSize, err := intField("gap_size")
	if err != nil {
		return rec, err
	}
	cpu, err := intField("cpu_ns")
	if err != nil {
		return rec, err
	}
	if rec.Duplicate, err = boolField("duplicate_flag"); err != nil {
		return rec, err
	}
	if rec.Gap, err = boolField("gap_flag"); err != nil {
		return rec, err
	}
	if rec.OutOfOrder, err = boolField("out_of_order_flag"); err != nil {
		return rec, err
	}

	rec.DeviceID = uint16(dev)
	rec.Seq = uint16(seq)
	rec.MsgType = uint8(mt)
	rec.SendTimestamp = uint32(ts)
	rec.ArrivalTime = time.UnixMicro(arrival)
	rec.GapSize = int(gapSize)
	rec.ProcessingCost = time.Duration(cpu)
	return rec, nil
}
