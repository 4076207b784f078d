package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode 解析遥测帧
//
// 帧头错误（ErrTooShort/ErrChecksumMismatch/ErrMalformed）返回 nil 帧，整帧丢弃。
// DATA 帧载荷不足时返回已解析的帧头以及 ErrPayloadTruncated，调用方仍可继续分类。
// 未知消息类型按结构解析帧头，载荷不解释。
func Decode(b []byte) (*Frame, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrTooShort, len(b), HeaderSize)
	}
	header := b[:HeaderSize]
	if err := VerifyChecksum(header); err != nil {
		return nil, fmt.Errorf("%w: want 0x%02X, got 0x%02X", err, Checksum(header[:checksumOffset]), header[checksumOffset])
	}
	if header[0] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, header[0])
	}

	f := &Frame{
		Version:       header[0],
		Type:          MsgType(header[1]),
		DeviceID:      binary.BigEndian.Uint16(header[2:4]),
		Seq:           binary.BigEndian.Uint16(header[4:6]),
		SendTimestamp: binary.BigEndian.Uint32(header[6:10]),
		BatchSize:     header[10],
		Checksum:      header[checksumOffset],
	}
	if !f.IsData() || f.BatchSize == 0 {
		return f, nil
	}

	payload := b[HeaderSize:]
	if len(payload) < f.PayloadSize() {
		return f, fmt.Errorf("%w: %d bytes, need %d", ErrPayloadTruncated, len(payload), f.PayloadSize())
	}
	f.Readings = make([]float32, f.BatchSize)
	for i := range f.Readings {
		off := i * ReadingSize
		f.Readings[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[off : off+ReadingSize]))
	}
	return f, nil
}
