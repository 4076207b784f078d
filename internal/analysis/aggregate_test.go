package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trials(medians ...float64) []TrialSummary {
	out := make([]TrialSummary, len(medians))
	for i, m := range medians {
		out[i] = TrialSummary{TrialID: "run", Packets: 10, LatencySamples: 10, MedianLatencyMs: m, MeanLatencyMs: m + 1}
	}
	return out
}

func TestAggregate_MinMedianMax(t *testing.T) {
	agg := Aggregate("baseline", trials(10, 12, 11, 13, 9))

	assert.Equal(t, 5, agg.Runs)
	assert.Equal(t, Spread{Runs: 5, Min: 9, Median: 11, Max: 13}, agg.MedianLatency)
	assert.Equal(t, 12.0, agg.MeanLatency.Median)
}

func TestAggregate_EvenRuns(t *testing.T) {
	agg := Aggregate("s", trials(4, 1, 3, 2))
	assert.Equal(t, 2.5, agg.MedianLatency.Median)
}

func TestAggregate_SkipsTrialsWithoutLatency(t *testing.T) {
	runs := trials(10, 20)
	runs = append(runs, TrialSummary{TrialID: "all-skew", Packets: 5, Missing: 4})
	agg := Aggregate("s", runs)

	assert.Equal(t, 3, agg.Runs)
	assert.Equal(t, 2, agg.MedianLatency.Runs)
	assert.Equal(t, 15.0, agg.MedianLatency.Median)
	assert.Equal(t, 3, agg.Missing.Runs)
	assert.Equal(t, 4.0, agg.Missing.Max)
}

func TestCompare(t *testing.T) {
	base := Aggregate("baseline", trials(10, 12, 11))
	delayed := Aggregate("delay", trials(108, 112, 111))

	tests := []struct {
		name      string
		expected  float64
		tolerance float64
		pass      bool
	}{
		{"在容差内", 100, 5, true},
		{"超出容差", 50, 5, false},
		{"容差取绝对值", 101, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compare(delayed, base, "", tt.expected, tt.tolerance)
			require.NoError(t, err)
			assert.Equal(t, 100.0, c.Delta)
			assert.Equal(t, MetricMedianLatency, c.Metric)
			assert.Equal(t, tt.pass, c.Pass)
		})
	}
}

func TestCompare_EmptySideFails(t *testing.T) {
	c, err := Compare(Aggregate("a", nil), Aggregate("b", nil), MetricMedianLatency, 0, 100)
	require.NoError(t, err)
	assert.False(t, c.Pass)
}

func TestCompare_UnknownMetric(t *testing.T) {
	_, err := Compare(ScenarioSummary{}, ScenarioSummary{}, "jitter", 0, 0)
	assert.Error(t, err)
}

func TestParsePlan_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"无场景", `scenarios: []`},
		{"重名场景", "scenarios:\n  - {name: a, trials: [{id: x}]}\n  - {name: a, trials: [{id: y}]}\n"},
		{"无试验", "scenarios:\n  - {name: a}\n"},
		{"未知对比场景", "scenarios:\n  - {name: a, trials: [{id: x}]}\ncomparisons:\n  - {treatment: a, baseline: b}\n"},
		{"未知指标", "scenarios:\n  - {name: a, trials: [{id: x}]}\ncomparisons:\n  - {treatment: a, baseline: a, metric: jitter}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
