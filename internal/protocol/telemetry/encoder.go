package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode 构造遥测帧
// 先以校验位为0序列化帧头，计算校验和后回填，再追加载荷（仅 DATA）。
// DATA 帧的 BatchSize 取 len(Readings)，入参 Frame 不会被修改。
func Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("encode: nil frame")
	}
	var readings []float32
	batch := f.BatchSize
	if f.Type == MsgData {
		if len(f.Readings) > MaxBatchSize {
			return nil, fmt.Errorf("encode: %d readings exceeds max batch %d", len(f.Readings), MaxBatchSize)
		}
		readings = f.Readings
		batch = uint8(len(readings))
	}

	version := f.Version
	if version == 0 {
		version = Version
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(readings)*ReadingSize)
	buf[0] = version
	buf[1] = byte(f.Type)
	binary.BigEndian.PutUint16(buf[2:4], f.DeviceID)
	binary.BigEndian.PutUint16(buf[4:6], f.Seq)
	binary.BigEndian.PutUint32(buf[6:10], f.SendTimestamp)
	buf[10] = batch
	buf[checksumOffset] = 0
	buf[checksumOffset] = Checksum(buf[:checksumOffset])

	for _, r := range readings {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(r))
	}
	return buf, nil
}

// BuildData 构造 DATA 帧（用于模拟器与测试）
func BuildData(deviceID, seq uint16, sendTs uint32, readings []float32) []byte {
	b, _ := Encode(&Frame{Type: MsgData, DeviceID: deviceID, Seq: seq, SendTimestamp: sendTs, Readings: readings})
	return b
}

// BuildControl 构造无载荷的 INIT/HEARTBEAT 帧
func BuildControl(t MsgType, deviceID, seq uint16, sendTs uint32) []byte {
	b, _ := Encode(&Frame{Type: t, DeviceID: deviceID, Seq: seq, SendTimestamp: sendTs})
	return b
}
