// Package scoring implements the four component scorers (fundamental,
// quality, growth, sentiment) and the composite aggregator.
package scoring

import (
	"github.com/aristath/equityscope/internal/domain"
)

// ComponentMetrics is the output of one component scorer: raw ratios,
// per-ratio subscores, the staleness-discounted composite, and the
// versioning metadata carried through from the read.
type ComponentMetrics struct {
	Symbol    string           `json:"symbol"`
	Component domain.Component `json:"component"`
	Sector    string           `json:"sector,omitempty"`

	Ratios    map[string]float64 `json:"ratios,omitempty"`    // raw values present
	Subscores map[string]float64 `json:"subscores,omitempty"` // 0-100 per ratio
	Score     float64            `json:"score"`               // 0-100, staleness applied

	DataQuality     float64               `json:"data_quality"` // [0,1]
	AgeDays         float64               `json:"data_age_days"`
	Freshness       domain.FreshnessLevel `json:"data_freshness_level"`
	StalenessImpact float64               `json:"staleness_impact"`
	Warnings        []string              `json:"staleness_warnings,omitempty"`
	VersionID       string                `json:"version_id"`
}

// missingMetrics returns the zero-score metrics for an absent component.
func missingMetrics(symbol string, component domain.Component, sector, versionID string, warnings []string) *ComponentMetrics {
	return &ComponentMetrics{
		Symbol:          symbol,
		Component:       component,
		Sector:          sector,
		Freshness:       domain.FreshnessMissing,
		StalenessImpact: 0,
		Warnings:        warnings,
		VersionID:       versionID,
	}
}

// subscore is one ratio's evaluation before weight redistribution.
type subscore struct {
	score float64
	valid bool // invalid subscores surrender their weight
}

// combineSubscores computes the weighted composite, redistributing the
// weight of invalid subscores proportionally across the valid ones.
// Returns the composite and the fraction of total weight that was backed by
// valid data (used as a completeness measure).
func combineSubscores(weights map[string]float64, scores map[string]subscore) (float64, float64) {
	var validWeight float64
	for name, w := range weights {
		if s, ok := scores[name]; ok && s.valid {
			validWeight += w
		}
	}
	if validWeight == 0 {
		return 0, 0
	}

	var composite float64
	for name, w := range weights {
		s, ok := scores[name]
		if !ok || !s.valid {
			continue
		}
		composite += (w / validWeight) * s.score
	}
	return composite, validWeight
}
