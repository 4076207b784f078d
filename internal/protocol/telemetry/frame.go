package telemetry

import (
	"errors"
	"fmt"
)

// 帧头格式（大端）：
// version(1) + type(1) + deviceID(2) + seq(2) + sendTs(4) + batch(1) + checksum(1)
const (
	HeaderSize     = 12
	ReadingSize    = 4
	Version        = 1
	MaxBatchSize   = 0xFF
	checksumOffset = HeaderSize - 1
)

var (
	ErrTooShort         = errors.New("frame too short")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrMalformed        = errors.New("malformed frame")
	// ErrPayloadTruncated 帧头有效但载荷不足 batch*4 字节，非致命
	ErrPayloadTruncated = errors.New("payload truncated")
)

// MsgType 消息类型
type MsgType uint8

const (
	MsgInit      MsgType = 0
	MsgData      MsgType = 1
	MsgHeartbeat MsgType = 2
)

func (t MsgType) String() string {
	switch t {
	case MsgInit:
		return "init"
	case MsgData:
		return "data"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Known 是否为已知消息类型
func (t MsgType) Known() bool {
	return t <= MsgHeartbeat
}

// Frame 遥测协议帧
type Frame struct {
	Version       uint8
	Type          MsgType
	DeviceID      uint16
	Seq           uint16
	SendTimestamp uint32 // 毫秒时间戳截断为32位，约49.7天回绕一次
	BatchSize     uint8
	Checksum      uint8
	Readings      []float32 // 仅 DATA 帧
}

// IsData 判断是否为数据帧
func (f *Frame) IsData() bool {
	return f.Type == MsgData
}

// IsHeartbeat 判断是否为心跳帧
func (f *Frame) IsHeartbeat() bool {
	return f.Type == MsgHeartbeat
}

// PayloadSize 按 batch 声明的载荷长度
func (f *Frame) PayloadSize() int {
	return int(f.BatchSize) * ReadingSize
}
