package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// 可比较的场景指标
const (
	MetricMedianLatency = "median_latency_ms"
	MetricMeanLatency   = "mean_latency_ms"
	MetricDuplicateRate = "duplicate_rate"
	MetricMissing       = "missing"
	MetricCPU           = "mean_cpu_ms"
)

// Spread 多次重复试验的 min/median/max
type Spread struct {
	Runs   int     `json:"runs"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// NewSpread 计算 min/median/max；空输入返回零值
func NewSpread(vs []float64) Spread {
	if len(vs) == 0 {
		return Spread{}
	}
	return Spread{Runs: len(vs), Min: floats.Min(vs), Median: Median(vs), Max: floats.Max(vs)}
}

// ScenarioSummary 同一场景多次试验的汇总
type ScenarioSummary struct {
	Scenario      string   `json:"scenario"`
	Runs          int      `json:"runs"`
	Trials        []string `json:"trials"`
	MedianLatency Spread   `json:"median_latency_ms"`
	MeanLatency   Spread   `json:"mean_latency_ms"`
	DuplicateRate Spread   `json:"duplicate_rate"`
	Missing       Spread   `json:"missing"`
	CPU           Spread   `json:"mean_cpu_ms"`
}

// Aggregate 汇总场景内各次试验。无有效延迟样本的试验不计入延迟指标。
func Aggregate(scenario string, runs []TrialSummary) ScenarioSummary {
	out := ScenarioSummary{Scenario: scenario, Runs: len(runs), Trials: make([]string, 0, len(runs))}
	var medLat, meanLat, dup, missing, cpu []float64
	for _, r := range runs {
		out.Trials = append(out.Trials, r.TrialID)
		if r.LatencySamples > 0 {
			medLat = append(medLat, r.MedianLatencyMs)
			meanLat = append(meanLat, r.MeanLatencyMs)
		}
		if r.Packets > 0 {
			dup = append(dup, r.DuplicateRate)
			cpu = append(cpu, r.MeanCPUMs)
		}
		missing = append(missing, float64(r.Missing))
	}
	out.MedianLatency = NewSpread(medLat)
	out.MeanLatency = NewSpread(meanLat)
	out.DuplicateRate = NewSpread(dup)
	out.Missing = NewSpread(missing)
	out.CPU = NewSpread(cpu)
	return out
}

// Spread 按指标名取汇总
func (s ScenarioSummary) Spread(metric string) (Spread, error) {
	switch metric {
	case "", MetricMedianLatency:
		return s.MedianLatency, nil
	case MetricMeanLatency:
		return s.MeanLatency, nil
	case MetricDuplicateRate:
		return s.DuplicateRate, nil
	case MetricMissing:
		return s.Missing, nil
	case MetricCPU:
		return s.CPU, nil
	default:
		return Spread{}, fmt.Errorf("unknown metric %q", metric)
	}
}

// Comparison 处理组与基线的中位数差值及判定
type Comparison struct {
	Treatment string  `json:"treatment"`
	Baseline  string  `json:"baseline"`
	Metric    string  `json:"metric"`
	Delta     float64 `json:"delta"`
	Expected  float64 `json:"expected"`
	Tolerance float64 `json:"tolerance"`
	Pass      bool    `json:"pass"`
}

// Compare delta = treatment.median - baseline.median，|delta-expected| <= tolerance 判定通过。
// 任一侧没有有效试验时判定失败。
func Compare(treatment, baseline ScenarioSummary, metric string, expected, tolerance float64) (Comparison, error) {
	if metric == "" {
		metric = MetricMedianLatency
	}
	t, err := treatment.Spread(metric)
	if err != nil {
		return Comparison{}, err
	}
	b, err := baseline.Spread(metric)
	if err != nil {
		return Comparison{}, err
	}
	c := Comparison{
		Treatment: treatment.Scenario,
		Baseline:  baseline.Scenario,
		Metric:    metric,
		Delta:     t.Median - b.Median,
		Expected:  expected,
		Tolerance: math.Abs(tolerance),
	}
	c.Pass = t.Runs > 0 && b.Runs > 0 && math.Abs(c.Delta-expected) <= c.Tolerance
	return c, nil
}
