package analysis

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/sequence"
)

// OnlineSummary 在线分类标志的原样统计（按到达顺序得出，仅供对照）
type OnlineSummary struct {
	Duplicates    int     `json:"duplicates"`
	DuplicateRate float64 `json:"duplicate_rate"`
	GapFlags      int     `json:"gap_flags"`
	OutOfOrder    int     `json:"out_of_order"`
}

// TrialSummary 单次试验的离线统计
type TrialSummary struct {
	TrialID  string `json:"trial_id"`
	Packets  int    `json:"packets"`
	Devices  int    `json:"devices"`
	Frames   int    `json:"unique_frames"`
	Scenario string `json:"scenario,omitempty"`

	Duplicates    int     `json:"duplicates"`
	DuplicateRate float64 `json:"duplicate_rate"`
	GapEvents     int     `json:"gap_events"`
	Missing       int     `json:"missing"`           // 缺失序号总数
	MissingPerDev float64 `json:"missing_per_device"` // 按设备平均

	LatencySamples  int     `json:"latency_samples"`
	SkewSamples     int     `json:"skew_samples"`
	MeanLatencyMs   float64 `json:"mean_latency_ms"`
	MedianLatencyMs float64 `json:"median_latency_ms"`
	MinLatencyMs    float64 `json:"min_latency_ms"`
	MaxLatencyMs    float64 `json:"max_latency_ms"`

	MeanCPUMs float64 `json:"mean_cpu_ms"`

	Online OnlineSummary `json:"online"`
}

// Analyze 按发送时间重排记录并重新判定重复与缺失，与到达顺序无关。
// 输入中的在线标志只进入 Online 对照统计。输入切片不会被修改。
func Analyze(trialID string, records []coremodel.Record) TrialSummary {
	sum := TrialSummary{TrialID: trialID, Packets: len(records)}
	if len(records) == 0 {
		return sum
	}

	rows := make([]coremodel.Record, len(records))
	copy(rows, records)
	sortBySendTime(rows)

	latencies := make([]float64, 0, len(rows))
	cpu := make([]float64, 0, len(rows))
	devices := 0
	prev := sequence.NoSequence
	for i := range rows {
		r := &rows[i]
		if i == 0 || r.DeviceID != rows[i-1].DeviceID {
			devices++
			prev = sequence.NoSequence
		}

		seq := int(r.Seq)
		switch {
		case seq == prev:
			sum.Duplicates++
		default:
			if prev != sequence.NoSequence {
				if d := sequence.Distance(prev, seq); d > 1 {
					sum.GapEvents++
					sum.Missing += d - 1
				}
			}
			prev = seq
		}

		if ms, ok := LatencyMillis(r.SendTimestamp, r.ArrivalTime); ok {
			latencies = append(latencies, float64(ms))
		} else {
			sum.SkewSamples++
		}
		cpu = append(cpu, r.CPUMillis())

		if r.Duplicate {
			sum.Online.Duplicates++
		}
		if r.Gap {
			sum.Online.GapFlags++
		}
		if r.OutOfOrder {
			sum.Online.OutOfOrder++
		}
	}

	n := float64(sum.Packets)
	sum.Devices = devices
	sum.Frames = sum.Packets - sum.Duplicates
	sum.DuplicateRate = float64(sum.Duplicates) / n
	sum.MissingPerDev = float64(sum.Missing) / float64(devices)
	sum.Online.DuplicateRate = float64(sum.Online.Duplicates) / n
	sum.MeanCPUMs = stat.Mean(cpu, nil)

	sum.LatencySamples = len(latencies)
	if len(latencies) > 0 {
		sum.MeanLatencyMs = stat.Mean(latencies, nil)
		sum.MedianLatencyMs = Median(latencies)
		sum.MinLatencyMs = floats.Min(latencies)
		sum.MaxLatencyMs = floats.Max(latencies)
	}
	return sum
}

// sortBySendTime 设备内按发送时间排序；同一时间戳按序号、再按到达时间，保证结果确定且重复帧相邻
func sortBySendTime(rows []coremodel.Record) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.SendTimestamp != b.SendTimestamp {
			return a.SendTimestamp < b.SendTimestamp
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ArrivalTime.Before(b.ArrivalTime)
	})
}

// Median 升序排序后取中位数，偶数个取中间两值均值；空切片返回 0
func Median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := make([]float64, len(vs))
	copy(s, vs)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
