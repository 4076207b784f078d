package analysis

import (
	"time"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

// WrapThreshold 差值低于该值视为 32 位毫秒时间戳回绕，需加 2^32
const WrapThreshold int64 = -(1 << 31)

const wrapSpan int64 = 1 << 32

// LatencyMillis 用截断到32位的到达毫秒减去发送时间戳，并修正回绕。
// 修正后仍为负说明两端时钟偏差，返回 ok=false，该样本不参与统计。
func LatencyMillis(sendTs uint32, arrival time.Time) (ms int64, ok bool) {
	return CorrectedDelta(coremodel.TruncMillis(arrival), sendTs)
}

// CorrectedDelta 在32位截断毫秒域上计算 arrival-send
func CorrectedDelta(arrivalMs, sendTs uint32) (int64, bool) {
	diff := int64(arrivalMs) - int64(sendTs)
	if diff < WrapThreshold {
		diff += wrapSpan
	}
	if diff < 0 {
		return diff, false
	}
	return diff, true
}
