package scoring

import (
	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/sectors"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// FCF weight bounds after sector rebalancing.
const (
	fcfWeightFloor = 0.10
	fcfWeightCeil  = 0.40
)

// FundamentalScorer scores valuation ratios against sector-adjusted
// thresholds: P/E, EV/EBITDA, PEG, and FCF yield.
type FundamentalScorer struct {
	weights    map[string]float64
	thresholds map[string]config.Thresholds
	log        zerolog.Logger
}

func NewFundamentalScorer(m *config.Methodology, log zerolog.Logger) *FundamentalScorer {
	return &FundamentalScorer{
		weights:    m.FundamentalWeights,
		thresholds: m.ScoringThresholds,
		log:        log.With().Str("module", "scoring").Str("scorer", "fundamental").Logger(),
	}
}

// Score evaluates the fundamentals component for one symbol. The sector
// adjusts both the valuation thresholds and the FCF weight.
func (s *FundamentalScorer) Score(symbol, sector string, v *versioning.FundamentalsVersion) *ComponentMetrics {
	if v == nil || v.Record == nil {
		var warnings []string
		if v != nil {
			warnings = v.Warnings
		}
		return missingMetrics(symbol, domain.ComponentFundamentals, sector, versionIDOf(v), warnings)
	}

	thresholds := sectors.AdjustThresholds(s.thresholds, sector)
	weights := s.sectorWeights(sector)
	rec := v.Record

	ratios := make(map[string]float64)
	subs := make(map[string]subscore, len(weights))

	for name := range weights {
		value, ok := rec.Ratio(name)
		if !ok {
			subs[name] = subscore{valid: false}
			continue
		}
		ratios[name] = value

		switch name {
		case "pe_ratio", "ev_ebitda", "peg_ratio":
			// A non-positive valuation multiple means negative earnings or
			// EBITDA; the ratio carries no signal and surrenders its weight.
			if value <= 0 {
				subs[name] = subscore{valid: false}
				continue
			}
		case "fcf_yield":
			// Negative FCF is a real (bad) signal: score zero, keep weight.
			if value < 0 {
				subs[name] = subscore{score: 0, valid: true}
				continue
			}
		}
		subs[name] = subscore{score: Score(value, thresholds[name]), valid: true}
	}

	composite, coverage := combineSubscores(weights, subs)
	final := composite * v.StalenessImpact

	s.log.Debug().Str("symbol", symbol).Str("sector", sector).
		Float64("score", final).Float64("coverage", coverage).
		Msg("fundamental score calculated")

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

// sectorWeights rebalances the base fundamental weights by the sector's FCF
// focus. The FCF weight is clamped to [0.10, 0.40]; the remaining ratios
// share the rest proportionally.
func (s *FundamentalScorer) sectorWeights(sector string) map[string]float64 {
	focus := sectors.FCFWeightMultiplier(sector)
	baseFCF := s.weights["fcf_yield"]
	if focus == 1.0 || baseFCF == 0 {
		return s.weights
	}

	newFCF := baseFCF * focus
	if newFCF < fcfWeightFloor {
		newFCF = fcfWeightFloor
	}
	if newFCF > fcfWeightCeil {
		newFCF = fcfWeightCeil
	}

	restBase := 1.0 - baseFCF
	restNew := 1.0 - newFCF

	adjusted := make(map[string]float64, len(s.weights))
	for name, w := range s.weights {
		if name == "fcf_yield" {
			adjusted[name] = newFCF
			continue
		}
		adjusted[name] = w / restBase * restNew
	}
	return adjusted
}

func exportSubscores(subs map[string]subscore) map[string]float64 {
	out := make(map[string]float64, len(subs))
	for name, s := range subs {
		if s.valid {
			out[name] = s.score
		}
	}
	return out
}

func versionIDOf(v *versioning.FundamentalsVersion) string {
	if v == nil {
		return ""
	}
	return v.VersionID
}
