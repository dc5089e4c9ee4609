package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/equityscope/internal/domain"
)

// Thresholds are the five anchor points of a piecewise-linear scoring curve.
// For lower-is-better ratios (P/E, EV/EBITDA, PEG, debt/equity) the excellent
// anchor is the smallest value; for higher-is-better ratios it is the largest.
type Thresholds struct {
	Excellent     float64 `yaml:"excellent"`
	Good          float64 `yaml:"good"`
	Average       float64 `yaml:"average"`
	Poor          float64 `yaml:"poor"`
	VeryPoor      float64 `yaml:"very_poor"`
	LowerIsBetter bool    `yaml:"lower_is_better"`
}

// ComponentWeights are the base weights of the composite aggregator.
type ComponentWeights struct {
	Fundamental float64 `yaml:"fundamental"`
	Quality     float64 `yaml:"quality"`
	Growth      float64 `yaml:"growth"`
	Sentiment   float64 `yaml:"sentiment"`
}

// Sum returns the total of the four weights.
func (w ComponentWeights) Sum() float64 {
	return w.Fundamental + w.Quality + w.Growth + w.Sentiment
}

// StalenessLimits are the per-component freshness bucket boundaries in days.
// Ages beyond StaleDays classify as VERY_STALE.
type StalenessLimits struct {
	FreshDays  float64 `yaml:"fresh_days"`
	RecentDays float64 `yaml:"recent_days"`
	StaleDays  float64 `yaml:"stale_days"`
}

// RateLimit is a per-source request budget over a sliding window.
type RateLimit struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// GateRule mirrors domain.QualityRule for the YAML document.
type GateRule struct {
	Component      string  `yaml:"component"`
	MetricName     string  `yaml:"metric_name"`
	Threshold      float64 `yaml:"threshold"`
	Operator       string  `yaml:"operator"`
	BlocksAnalysis bool    `yaml:"blocks_analysis"`
	Description    string  `yaml:"description"`
}

// Methodology is the scoring methodology document. Defaults are compiled in;
// a YAML file can override any section.
type Methodology struct {
	Version string `yaml:"version"`

	ComponentWeights    ComponentWeights `yaml:"component_weights"`
	MinComponentQuality float64          `yaml:"min_component_quality"`

	FundamentalWeights map[string]float64     `yaml:"fundamental_weights"` // pe_ratio, ev_ebitda, peg_ratio, fcf_yield
	QualityWeights     map[string]float64     `yaml:"quality_weights"`     // roe, roic, debt_to_equity, current_ratio
	GrowthWeights      map[string]float64     `yaml:"growth_weights"`      // revenue_growth, eps_growth, revenue_stability, forward_growth
	SentimentWeights   map[string]float64     `yaml:"sentiment_weights"`   // news, social, momentum, volume
	ScoringThresholds  map[string]Thresholds  `yaml:"scoring_thresholds"`  // keyed by ratio name
	SentimentLookback  int                    `yaml:"sentiment_lookback_days"`

	Staleness map[domain.Component]StalenessLimits `yaml:"staleness_limits"`

	GateRules []GateRule `yaml:"gate_rules"`

	RateLimits map[string]RateLimit `yaml:"rate_limits"` // keyed by source name
}

// DefaultMethodology returns the compiled-in methodology document.
func DefaultMethodology() *Methodology {
	return &Methodology{
		Version: "2.1.0",
		ComponentWeights: ComponentWeights{
			Fundamental: 0.40,
			Quality:     0.25,
			Growth:      0.20,
			Sentiment:   0.15,
		},
		MinComponentQuality: 0.30,
		FundamentalWeights: map[string]float64{
			"pe_ratio":  0.30,
			"ev_ebitda": 0.25,
			"peg_ratio": 0.25,
			"fcf_yield": 0.20,
		},
		QualityWeights: map[string]float64{
			"roe":            0.30,
			"roic":           0.30,
			"debt_to_equity": 0.20,
			"current_ratio":  0.20,
		},
		GrowthWeights: map[string]float64{
			"revenue_growth":    0.30,
			"eps_growth":        0.30,
			"revenue_stability": 0.20,
			"forward_growth":    0.20,
		},
		SentimentWeights: map[string]float64{
			"news":     0.35,
			"social":   0.25,
			"momentum": 0.25,
			"volume":   0.15,
		},
		SentimentLookback: 14,
		ScoringThresholds: map[string]Thresholds{
			"pe_ratio":          {Excellent: 10, Good: 15, Average: 20, Poor: 30, VeryPoor: 40, LowerIsBetter: true},
			"ev_ebitda":         {Excellent: 8, Good: 12, Average: 16, Poor: 20, VeryPoor: 25, LowerIsBetter: true},
			"peg_ratio":         {Excellent: 0.8, Good: 1.2, Average: 1.8, Poor: 2.5, VeryPoor: 3.5, LowerIsBetter: true},
			"fcf_yield":         {Excellent: 0.08, Good: 0.06, Average: 0.04, Poor: 0.02, VeryPoor: 0.01},
			"roe":               {Excellent: 0.25, Good: 0.20, Average: 0.15, Poor: 0.10, VeryPoor: 0.05},
			"roic":              {Excellent: 0.20, Good: 0.15, Average: 0.10, Poor: 0.07, VeryPoor: 0.04},
			"debt_to_equity":    {Excellent: 0.3, Good: 0.6, Average: 1.0, Poor: 1.5, VeryPoor: 2.5, LowerIsBetter: true},
			"current_ratio":     {Excellent: 2.5, Good: 2.0, Average: 1.5, Poor: 1.2, VeryPoor: 1.0},
			"revenue_growth":    {Excellent: 0.20, Good: 0.12, Average: 0.08, Poor: 0.04, VeryPoor: 0.00},
			"eps_growth":        {Excellent: 0.20, Good: 0.12, Average: 0.08, Poor: 0.04, VeryPoor: 0.00},
			"revenue_stability": {Excellent: 0.90, Good: 0.80, Average: 0.70, Poor: 0.50, VeryPoor: 0.30},
			"forward_growth":    {Excellent: 0.18, Good: 0.12, Average: 0.08, Poor: 0.04, VeryPoor: 0.00},
		},
		Staleness: map[domain.Component]StalenessLimits{
			domain.ComponentFundamentals: {FreshDays: 1, RecentDays: 30, StaleDays: 120},
			domain.ComponentPriceData:    {FreshDays: 1, RecentDays: 3, StaleDays: 7},
			domain.ComponentNewsData:     {FreshDays: 1, RecentDays: 7, StaleDays: 30},
			domain.ComponentSentiment:    {FreshDays: 1, RecentDays: 7, StaleDays: 14},
		},
		GateRules: []GateRule{
			{Component: "fundamentals", MetricName: "quality_score", Threshold: 0.5, Operator: ">=", BlocksAnalysis: true, Description: "Fundamentals quality must be at least 0.5"},
			{Component: "fundamentals", MetricName: "age_days", Threshold: 120, Operator: "<=", BlocksAnalysis: true, Description: "Fundamentals older than 120 days block analysis"},
			{Component: "price_data", MetricName: "age_days", Threshold: 7, Operator: "<=", BlocksAnalysis: true, Description: "Price data older than 7 days blocks analysis"},
			{Component: "price_data", MetricName: "record_count", Threshold: 20, Operator: ">=", BlocksAnalysis: false, Description: "Prefer at least 20 price bars"},
			{Component: "news_data", MetricName: "age_days", Threshold: 30, Operator: "<=", BlocksAnalysis: false, Description: "News older than 30 days only warns"},
			{Component: "sentiment_data", MetricName: "quality_score", Threshold: 0.3, Operator: ">=", BlocksAnalysis: false, Description: "Low sentiment quality warns"},
		},
		RateLimits: map[string]RateLimit{
			"yahoo":     {MaxRequests: 60, WindowSeconds: 60},
			"reddit":    {MaxRequests: 60, WindowSeconds: 60},
			"wikipedia": {MaxRequests: 10, WindowSeconds: 3600},
		},
	}
}

// LoadMethodology returns the default methodology overlaid with the YAML
// document at path, when path is non-empty.
func LoadMethodology(path string) (*Methodology, error) {
	m := DefaultMethodology()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read methodology file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse methodology file %s: %w", path, err)
	}
	return m, nil
}

// Validate enforces the methodology invariants: component weights sum to
// 1.0 ± 0.001, quality thresholds stay in [0,1], staleness limits stay in
// [1,365] days and are ordered.
func (m *Methodology) Validate() error {
	if diff := math.Abs(m.ComponentWeights.Sum() - 1.0); diff > 0.001 {
		return fmt.Errorf("component weights must sum to 1.0 (got %.4f)", m.ComponentWeights.Sum())
	}

	if m.MinComponentQuality < 0 || m.MinComponentQuality > 1 {
		return fmt.Errorf("min_component_quality must be in [0,1], got %.3f", m.MinComponentQuality)
	}

	for _, group := range []map[string]float64{m.FundamentalWeights, m.QualityWeights, m.GrowthWeights, m.SentimentWeights} {
		var sum float64
		for _, w := range group {
			if w < 0 {
				return fmt.Errorf("negative scoring weight")
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 0.001 {
			return fmt.Errorf("scoring group weights must sum to 1.0 (got %.4f)", sum)
		}
	}

	for component, limits := range m.Staleness {
		if !component.IsValid() {
			return fmt.Errorf("staleness limits reference unknown component %q", component)
		}
		for _, days := range []float64{limits.FreshDays, limits.RecentDays, limits.StaleDays} {
			if days < 1 || days > 365 {
				return fmt.Errorf("staleness limit for %s out of range [1,365]: %.1f", component, days)
			}
		}
		if limits.FreshDays > limits.RecentDays || limits.RecentDays > limits.StaleDays {
			return fmt.Errorf("staleness limits for %s must be ordered fresh <= recent <= stale", component)
		}
	}

	for _, rule := range m.GateRules {
		if !domain.Component(rule.Component).IsValid() {
			return fmt.Errorf("gate rule references unknown component %q", rule.Component)
		}
		switch rule.Operator {
		case ">=", "<=", ">", "<", "==":
		default:
			return fmt.Errorf("gate rule %s/%s has unknown operator %q", rule.Component, rule.MetricName, rule.Operator)
		}
		if rule.MetricName == "quality_score" && (rule.Threshold < 0 || rule.Threshold > 1) {
			return fmt.Errorf("quality threshold for %s must be in [0,1], got %.3f", rule.Component, rule.Threshold)
		}
	}

	for source, rl := range m.RateLimits {
		if rl.MaxRequests < 1 || rl.WindowSeconds < 1 {
			return fmt.Errorf("rate limit for %s must be positive", source)
		}
	}

	return nil
}

// DomainRules converts the configured gate rules to domain records.
func (m *Methodology) DomainRules() []domain.QualityRule {
	rules := make([]domain.QualityRule, 0, len(m.GateRules))
	for _, r := range m.GateRules {
		rules = append(rules, domain.QualityRule{
			Component:      domain.Component(r.Component),
			MetricName:     r.MetricName,
			Threshold:      r.Threshold,
			Operator:       r.Operator,
			BlocksAnalysis: r.BlocksAnalysis,
			Description:    r.Description,
		})
	}
	return rules
}
