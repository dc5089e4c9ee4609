package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
)

// Outlier classification cutoffs against the sector cohort.
const (
	undervaluedScore      = 70.0
	undervaluedPercentile = 80.0
	overvaluedScore       = 40.0
	overvaluedPercentile  = 20.0
	// Half-width of the confidence band at zero data quality.
	confidenceSpread = 15.0
)

// CohortEntry is one peer's composite used for the sector percentile.
type CohortEntry struct {
	Symbol    string
	Sector    string
	Composite float64
}

// Aggregator combines the four component scores into the persisted
// composite, with low-quality components dropped and their weight
// renormalized across the survivors.
type Aggregator struct {
	weights     config.ComponentWeights
	minQuality  float64
	methodology string
	now         func() time.Time
	log         zerolog.Logger
}

func NewAggregator(m *config.Methodology, log zerolog.Logger) (*Aggregator, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid methodology for aggregation: %w", err)
	}
	return &Aggregator{
		weights:     m.ComponentWeights,
		minQuality:  m.MinComponentQuality,
		methodology: m.Version,
		now:         time.Now,
		log:         log.With().Str("module", "scoring").Str("scorer", "composite").Logger(),
	}, nil
}

// Aggregate folds the component metrics into one CalculatedMetrics row.
// cohort holds the sector peers' composites for the percentile; it may be
// empty, in which case the percentile is 50.
func (a *Aggregator) Aggregate(
	symbol string,
	fundamental, quality, growth, sentiment *ComponentMetrics,
	cohort []CohortEntry,
) *domain.CalculatedMetrics {
	type weighted struct {
		metrics *ComponentMetrics
		weight  float64
	}
	parts := []weighted{
		{fundamental, a.weights.Fundamental},
		{quality, a.weights.Quality},
		{growth, a.weights.Growth},
		{sentiment, a.weights.Sentiment},
	}

	var usable []weighted
	var usableWeight float64
	for _, p := range parts {
		if p.metrics == nil || p.metrics.DataQuality < a.minQuality {
			continue
		}
		usable = append(usable, p)
		usableWeight = usableWeight + p.weight
	}

	out := &domain.CalculatedMetrics{
		Symbol:             symbol,
		CalculationDate:    a.now().UTC().Truncate(24 * time.Hour),
		FundamentalScore:   scoreOf(fundamental),
		QualityScore:       scoreOf(quality),
		GrowthScore:        scoreOf(growth),
		SentimentScore:     scoreOf(sentiment),
		MethodologyVersion: a.methodology,
	}

	if len(usable) == 0 || usableWeight == 0 {
		out.OutlierCategory = domain.OutlierInsufficientData
		out.SectorPercentile = 50
		a.log.Warn().Str("symbol", symbol).Msg("no component met minimum quality; composite withheld")
		return out
	}

	var composite, qualitySum float64
	for _, p := range usable {
		w := p.weight / usableWeight
		composite += w * p.metrics.Score
		qualitySum += w * p.metrics.DataQuality
	}

	out.CompositeScore = clampScore(composite)
	out.DataQuality = clamp01(qualitySum)
	out.SectorPercentile = sectorPercentile(out.CompositeScore, cohort)
	out.ConfidenceLow = clampScore(out.CompositeScore - (1-out.DataQuality)*confidenceSpread)
	out.ConfidenceHigh = clampScore(out.CompositeScore + (1-out.DataQuality)*confidenceSpread)
	out.OutlierCategory = classify(out.CompositeScore, out.SectorPercentile, len(usable))

	a.log.Debug().Str("symbol", symbol).
		Float64("composite", out.CompositeScore).
		Float64("percentile", out.SectorPercentile).
		Str("category", string(out.OutlierCategory)).
		Msg("composite score calculated")
	return out
}

func scoreOf(m *ComponentMetrics) float64 {
	if m == nil {
		return 0
	}
	return m.Score
}

// sectorPercentile places the composite in its sector cohort's empirical
// distribution. An empty cohort yields the neutral 50th percentile.
func sectorPercentile(composite float64, cohort []CohortEntry) float64 {
	if len(cohort) == 0 {
		return 50
	}
	scores := make([]float64, 0, len(cohort))
	for _, c := range cohort {
		scores = append(scores, c.Composite)
	}
	sort.Float64s(scores)
	return stat.CDF(composite, stat.Empirical, scores, nil) * 100
}

func classify(composite, percentile float64, usableComponents int) domain.OutlierCategory {
	if usableComponents < 2 {
		return domain.OutlierInsufficientData
	}
	if composite >= undervaluedScore && percentile >= undervaluedPercentile {
		return domain.OutlierUndervalued
	}
	if composite <= overvaluedScore || percentile <= overvaluedPercentile {
		return domain.OutlierOvervalued
	}
	return domain.OutlierFairlyValued
}
