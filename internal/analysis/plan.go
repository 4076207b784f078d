package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

// TrialSource 一次试验的记录来源：CSV 文件，或由存储按 trial id 读取
type TrialSource struct {
	ID  string `yaml:"id"`
	CSV string `yaml:"csv,omitempty"`
}

// ScenarioPlan 一个场景及其重复试验
type ScenarioPlan struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Trials      []TrialSource `yaml:"trials"`
}

// ComparisonPlan 场景间对比
type ComparisonPlan struct {
	Treatment string  `yaml:"treatment"`
	Baseline  string  `yaml:"baseline"`
	Metric    string  `yaml:"metric"`
	Expected  float64 `yaml:"expected"`
	Tolerance float64 `yaml:"tolerance"`
}

// Plan 分析计划
type Plan struct {
	Scenarios   []ScenarioPlan   `yaml:"scenarios"`
	Comparisons []ComparisonPlan `yaml:"comparisons"`
}

// Report 分析结果
type Report struct {
	Trials      []TrialSummary    `json:"trials"`
	Scenarios   []ScenarioSummary `json:"scenarios"`
	Comparisons []Comparison      `json:"comparisons,omitempty"`
}

// LoadFunc 读取一次试验的记录
type LoadFunc func(ctx context.Context, src TrialSource) ([]coremodel.Record, error)

// LoadPlan 读取 YAML 分析计划
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlan(b)
}

// ParsePlan 解析并校验计划
func ParsePlan(b []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate 场景名唯一、对比引用存在
func (p *Plan) Validate() error {
	if len(p.Scenarios) == 0 {
		return errors.New("plan has no scenarios")
	}
	names := make(map[string]bool, len(p.Scenarios))
	for _, s := range p.Scenarios {
		if s.Name == "" {
			return errors.New("scenario name is required")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate scenario %q", s.Name)
		}
		names[s.Name] = true
		if len(s.Trials) == 0 {
			return fmt.Errorf("scenario %q has no trials", s.Name)
		}
		for _, t := range s.Trials {
			if t.ID == "" && t.CSV == "" {
				return fmt.Errorf("scenario %q: trial needs id or csv", s.Name)
			}
		}
	}
	for _, c := range p.Comparisons {
		if !names[c.Treatment] || !names[c.Baseline] {
			return fmt.Errorf("comparison %s vs %s references unknown scenario", c.Treatment, c.Baseline)
		}
		if _, err := (ScenarioSummary{}).Spread(c.Metric); err != nil {
			return err
		}
	}
	return nil
}

// Run 逐次试验离线分析，再按场景汇总并执行对比
func Run(ctx context.Context, p *Plan, load LoadFunc) (*Report, error) {
	rep := &Report{}
	byName := make(map[string]ScenarioSummary, len(p.Scenarios))
	for _, sc := range p.Scenarios {
		runs := make([]TrialSummary, 0, len(sc.Trials))
		for _, src := range sc.Trials {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			recs, err := load(ctx, src)
			if err != nil {
				return nil, fmt.Errorf("scenario %s trial %s: %w", sc.Name, src.label(), err)
			}
			sum := Analyze(src.label(), recs)
			sum.Scenario = sc.Name
			runs = append(runs, sum)
		}
		rep.Trials = append(rep.Trials, runs...)
		agg := Aggregate(sc.Name, runs)
		rep.Scenarios = append(rep.Scenarios, agg)
		byName[sc.Name] = agg
	}
	for _, c := range p.Comparisons {
		cmp, err := Compare(byName[c.Treatment], byName[c.Baseline], c.Metric, c.Expected, c.Tolerance)
		if err != nil {
			return nil, err
		}
		rep.Comparisons = append(rep.Comparisons, cmp)
	}
	return rep, nil
}

func (s TrialSource) label() string {
	if s.ID != "" {
		return s.ID
	}
	return s.CSV
}
