package coremodel

import "time"

// Columns 持久化记录字段（CSV 表头与数据库列名一致）
var Columns = []string{
	"device_id",
	"seq",
	"timestamp",
	"arrival_time",
	"duplicate_flag",
	"gap_flag",
	"out_of_order_flag",
	"cpu_ms_per_report",
}

// Record 单帧在线分类结果（写入后不可变）
type Record struct {
	TrialID        string
	DeviceID       uint16
	Seq            uint16
	MsgType        uint8
	SendTimestamp  uint32    // 发送端截断毫秒时间戳（原样）
	ArrivalTime    time.Time // 接收端完整精度时间
	Duplicate      bool
	Gap            bool
	GapSize        int
	OutOfOrder     bool
	ProcessingCost time.Duration
}

// Fresh 非重复记录
func (r *Record) Fresh() bool { return !r.Duplicate }

// ArrivalMillis32 将到达时间截断为与发送时间戳相同的32位毫秒表示
func (r *Record) ArrivalMillis32() uint32 {
	return TruncMillis(r.ArrivalTime)
}

// CPUMillis 处理耗时（毫秒）
func (r *Record) CPUMillis() float64 {
	return float64(r.ProcessingCost) / float64(time.Millisecond)
}

// TruncMillis 毫秒时间戳截断为32位（约49.7天回绕）
func TruncMillis(t time.Time) uint32 {
	return uint32(t.UnixMilli())
}
