package scoring

import (
	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// QualityScorer scores balance-sheet strength and capital efficiency:
// ROE, ROIC, debt/equity, current ratio.
type QualityScorer struct {
	weights    map[string]float64
	thresholds map[string]config.Thresholds
	log        zerolog.Logger
}

func NewQualityScorer(m *config.Methodology, log zerolog.Logger) *QualityScorer {
	return &QualityScorer{
		weights:    m.QualityWeights,
		thresholds: m.ScoringThresholds,
		log:        log.With().Str("module", "scoring").Str("scorer", "quality").Logger(),
	}
}

func (s *QualityScorer) Score(symbol, sector string, v *versioning.FundamentalsVersion) *ComponentMetrics {
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

		switch name {
		case "roe", "roic":
			// Negative returns on capital are a real signal: zero, keep weight.
			if value < 0 {
				subs[name] = subscore{score: 0, valid: true}
				continue
			}
		case "debt_to_equity":
			// Negative equity makes the ratio meaningless.
			if value < 0 {
				subs[name] = subscore{valid: false}
				continue
			}
		case "current_ratio":
			if value <= 0 {
				subs[name] = subscore{valid: false}
				continue
			}
		}
		subs[name] = subscore{score: Score(value, s.thresholds[name]), valid: true}
	}

	composite, coverage := combineSubscores(s.weights, subs)
	final := composite * v.StalenessImpact

	s.log.Debug().Str("symbol", symbol).Float64("score", final).
		Float64("coverage", coverage).Msg("quality score calculated")

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
