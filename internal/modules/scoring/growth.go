package scoring

import (
	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// GrowthScorer scores expansion trajectory: revenue growth, EPS growth,
// revenue stability, forward growth. Negative growth is a legitimate value
// and scores through the curve's lower extension rather than being dropped.
type GrowthScorer struct {
	weights    map[string]float64
	thresholds map[string]config.Thresholds
	log        zerolog.Logger
}

func NewGrowthScorer(m *config.Methodology, log zerolog.Logger) *GrowthScorer {
	return &GrowthScorer{
		weights:    m.GrowthWeights,
		thresholds: m.ScoringThresholds,
		log:        log.With().Str("module", "scoring").Str("scorer", "growth").Logger(),
	}
}

func (s *GrowthScorer) Score(symbol, sector string, v *versioning.FundamentalsVersion) *ComponentMetrics {
	if v == nil || v.Record == nil {
		var warnings []string
		if v != nil {
			warnings = v.Warnings
		}
		return missingMetrics(symbol, domain.ComponentFundamentals, sector, versionIDOf(v), warnings)
	}
	rec := v.Record

	ratios := make(map[string]float64)
	subs := make(map[string]subscore, len(s.weights))

	for name := range s.weights {
		value, ok := rec.Ratio(name)
		if !ok {
			subs[name] = subscore{valid: false}
			continue
		}
		ratios[name] = value
		subs[name] = subscore{score: Score(value, s.thresholds[name]), valid: true}
	}

	composite, coverage := combineSubscores(s.weights, subs)
	final := composite * v.StalenessImpact

	s.log.Debug().Str("symbol", symbol).Float64("score", final).
		Float64("coverage", coverage).Msg("growth score calculated")

	return &ComponentMetrics{
		Symbol:          symbol,
		Component:       domain.ComponentFundamentals,
		Sector:          sector,
		Ratios:          ratios,
		Subscores:       exportSubscores(subs),
		Score:           final,
		DataQuality:     clamp01(v.Quality * coverage),
		AgeDays:         v.AgeDays,
		Freshness:       v.Freshness,
		StalenessImpact: v.StalenessImpact,
		Warnings:        v.Warnings,
		VersionID:       v.VersionID,
	}
}
