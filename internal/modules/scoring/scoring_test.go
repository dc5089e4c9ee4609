package scoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

func nopLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func peThresholds() config.Thresholds {
	return config.DefaultMethodology().ScoringThresholds["pe_ratio"]
}

func TestScore_AnchorsAndInterpolation(t *testing.T) {
	th := peThresholds() // 10/15/20/30/40, lower is better

	assert.InDelta(t, 90, Score(10, th), 1e-9)
	assert.InDelta(t, 75, Score(15, th), 1e-9)
	assert.InDelta(t, 60, Score(20, th), 1e-9)
	assert.InDelta(t, 40, Score(30, th), 1e-9)
	assert.InDelta(t, 20, Score(40, th), 1e-9)

	// Midpoints interpolate linearly.
	assert.InDelta(t, 82.5, Score(12.5, th), 1e-9)
	assert.InDelta(t, 50, Score(25, th), 1e-9)
}

func TestScore_ExtensionsAreCapped(t *testing.T) {
	th := peThresholds()

	// Better than excellent climbs toward 100 and caps.
	assert.Greater(t, Score(7, th), 90.0)
	assert.Equal(t, 100.0, Score(1, th))
	assert.Equal(t, 100.0, Score(-500, th))

	// Worse than very poor falls toward 0 and floors.
	assert.Less(t, Score(45, th), 20.0)
	assert.Equal(t, 0.0, Score(50, th))
	assert.Equal(t, 0.0, Score(10000, th))
}

func TestScore_HigherIsBetter(t *testing.T) {
	th := config.DefaultMethodology().ScoringThresholds["roe"] // .25/.20/.15/.10/.05

	assert.InDelta(t, 90, Score(0.25, th), 1e-9)
	assert.InDelta(t, 20, Score(0.05, th), 1e-9)
	assert.Greater(t, Score(0.30, th), 90.0)
	assert.Equal(t, 0.0, Score(-0.5, th))
}

func TestScore_AllScoresStayInRange(t *testing.T) {
	for name, th := range config.DefaultMethodology().ScoringThresholds {
		for _, v := range []float64{-1000, -1, 0, 0.001, 0.5, 1, 10, 100, 1e6} {
			s := Score(v, th)
			assert.GreaterOrEqual(t, s, 0.0, "%s at %v", name, v)
			assert.LessOrEqual(t, s, 100.0, "%s at %v", name, v)
		}
	}
}

func freshVersion(rec *domain.FundamentalRecord) *versioning.FundamentalsVersion {
	return &versioning.FundamentalsVersion{
		VersionedData: versioning.VersionedData{
			Symbol:          rec.Symbol,
			Component:       domain.ComponentFundamentals,
			Freshness:       domain.FreshnessFresh,
			Quality:         1.0,
			StalenessImpact: 1.0,
			VersionID:       rec.Symbol + ":fundamentals:test",
		},
		Record: rec,
	}
}

func fullRecord(symbol string, pe float64) *domain.FundamentalRecord {
	ev, peg := 10.0, 1.5
	fcf, mcap := int64(50), int64(1000) // yield 0.05
	return &domain.FundamentalRecord{
		Symbol:       symbol,
		PERatio:      &pe,
		EVEbitda:     &ev,
		PEGRatio:     &peg,
		FreeCashFlow: &fcf,
		MarketCap:    &mcap,
		Quality:      1.0,
		CreatedAt:    time.Now(),
	}
}

func TestFundamentalScorer_SectorThresholdsShiftTheScore(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewFundamentalScorer(m, nopLogger())

	// Same P/E of 30: tolerable for Technology, expensive for Utilities.
	tech := s.Score("TGT1", "Technology", freshVersion(fullRecord("TGT1", 30)))
	util := s.Score("UTL1", "Utilities", freshVersion(fullRecord("UTL1", 30)))

	assert.Greater(t, tech.Subscores["pe_ratio"], util.Subscores["pe_ratio"])
	assert.Greater(t, tech.Score, util.Score)
}

func TestFundamentalScorer_MissingRatioRedistributesWeight(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewFundamentalScorer(m, nopLogger())

	pe := 15.0 // scores 75 at default thresholds
	rec := &domain.FundamentalRecord{Symbol: "AAPL", PERatio: &pe, Quality: 1.0}

	metrics := s.Score("AAPL", "Unknown", freshVersion(rec))

	// Only P/E is present, so it carries all the weight.
	assert.InDelta(t, 75, metrics.Score, 1e-9)
	assert.Len(t, metrics.Subscores, 1)
	// Coverage-discounted quality reflects the gaps.
	assert.Less(t, metrics.DataQuality, 0.5)
}

func TestFundamentalScorer_NegativePEInvalid_NegativeFCFScoresZero(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewFundamentalScorer(m, nopLogger())

	pe := -5.0
	fcf, mcap := int64(-100), int64(1000)
	rec := &domain.FundamentalRecord{
		Symbol: "LOSS", PERatio: &pe, FreeCashFlow: &fcf, MarketCap: &mcap, Quality: 1.0,
	}

	metrics := s.Score("LOSS", "Unknown", freshVersion(rec))

	_, hasPE := metrics.Subscores["pe_ratio"]
	assert.False(t, hasPE, "negative P/E surrenders its weight")
	assert.Equal(t, 0.0, metrics.Subscores["fcf_yield"], "negative FCF scores zero but keeps weight")
	assert.Equal(t, 0.0, metrics.Score)
}

func TestFundamentalScorer_StalenessDiscountsScore(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewFundamentalScorer(m, nopLogger())

	v := freshVersion(fullRecord("AAPL", 15))
	fresh := s.Score("AAPL", "Unknown", v)

	v2 := freshVersion(fullRecord("AAPL", 15))
	v2.Freshness = domain.FreshnessStale
	v2.StalenessImpact = 0.85
	stale := s.Score("AAPL", "Unknown", v2)

	assert.InDelta(t, fresh.Score*0.85, stale.Score, 1e-9)
}

func TestFundamentalScorer_MissingRecord(t *testing.T) {
	s := NewFundamentalScorer(config.DefaultMethodology(), nopLogger())
	metrics := s.Score("NONE", "Unknown", nil)
	assert.Equal(t, 0.0, metrics.Score)
	assert.Equal(t, domain.FreshnessMissing, metrics.Freshness)
}

func TestFundamentalScorer_FCFWeightClampedForEnergy(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewFundamentalScorer(m, nopLogger())

	weights := s.sectorWeights("Energy") // focus 1.3: 0.20 -> 0.26
	assert.InDelta(t, 0.26, weights["fcf_yield"], 1e-9)

	var sum float64
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "rebalanced weights still sum to 1")
}

func TestQualityScorer_NegativeROEScoresZeroNegativeDEDropped(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewQualityScorer(m, nopLogger())

	roe, de, cr := -0.10, -2.0, 1.5
	rec := &domain.FundamentalRecord{
		Symbol: "BAD", ROE: &roe, DebtToEquity: &de, CurrentRatio: &cr, Quality: 1.0,
	}
	metrics := s.Score("BAD", "Unknown", freshVersion(rec))

	assert.Equal(t, 0.0, metrics.Subscores["roe"])
	_, hasDE := metrics.Subscores["debt_to_equity"]
	assert.False(t, hasDE, "negative equity invalidates debt/equity")
	assert.InDelta(t, 60, metrics.Subscores["current_ratio"], 1e-9)
}

func TestGrowthScorer_NegativeGrowthScoresThroughTheCurve(t *testing.T) {
	m := config.DefaultMethodology()
	s := NewGrowthScorer(m, nopLogger())

	rev := -0.02 // below the 0.00 very-poor anchor, inside the extension
	rec := &domain.FundamentalRecord{Symbol: "SHRINK", RevenueGrowth: &rev, Quality: 1.0}
	metrics := s.Score("SHRINK", "Unknown", freshVersion(rec))

	sub, ok := metrics.Subscores["revenue_growth"]
	require.True(t, ok, "negative growth is a valid value")
	assert.Less(t, sub, 20.0)
	assert.GreaterOrEqual(t, sub, 0.0)
}

func sentimentHistory(values []float64, newsCount, socialCount int64) []domain.DailySentiment {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.DailySentiment, len(values))
	for i, v := range values {
		out[i] = domain.DailySentiment{
			Symbol: "AAPL", Date: base.AddDate(0, 0, i),
			NewsSentiment: v, NewsCount: newsCount,
			SocialSentiment: v, SocialCount: socialCount,
			Combined: v, Quality: 1.0,
		}
	}
	return out
}

func sentimentVersion(history []domain.DailySentiment) *versioning.SentimentVersion {
	latest := history[len(history)-1]
	return &versioning.SentimentVersion{
		VersionedData: versioning.VersionedData{
			Symbol: "AAPL", Component: domain.ComponentSentiment,
			Freshness: domain.FreshnessFresh, Quality: 1.0, StalenessImpact: 1.0,
		},
		Latest:  &latest,
		History: history,
	}
}

func TestSentimentScorer_PositiveMoodScoresAboveNeutral(t *testing.T) {
	s := NewSentimentScorer(config.DefaultMethodology(), nopLogger())

	metrics := s.Score("AAPL", sentimentVersion(
		sentimentHistory([]float64{0.4, 0.45, 0.5, 0.5, 0.55}, 5, 5)))

	assert.Greater(t, metrics.Score, 50.0)
	assert.Greater(t, metrics.Subscores["news"], 50.0)
	assert.Greater(t, metrics.Subscores["momentum"], 50.0, "rising mood reads as positive momentum")
}

func TestSentimentScorer_FallingMoodReadsAsNegativeMomentum(t *testing.T) {
	s := NewSentimentScorer(config.DefaultMethodology(), nopLogger())

	metrics := s.Score("AAPL", sentimentVersion(
		sentimentHistory([]float64{0.5, 0.3, 0.1, -0.1, -0.3}, 5, 5)))

	assert.Less(t, metrics.Subscores["momentum"], 50.0)
}

func TestSentimentScorer_NoSocialRedistributesToRemaining(t *testing.T) {
	s := NewSentimentScorer(config.DefaultMethodology(), nopLogger())

	metrics := s.Score("AAPL", sentimentVersion(
		sentimentHistory([]float64{0.2, 0.2, 0.2}, 5, 0)))

	_, hasSocial := metrics.Subscores["social"]
	assert.False(t, hasSocial)
	assert.Greater(t, metrics.Score, 0.0)
}

func TestSentimentScorer_Missing(t *testing.T) {
	s := NewSentimentScorer(config.DefaultMethodology(), nopLogger())
	metrics := s.Score("NONE", nil)
	assert.Equal(t, 0.0, metrics.Score)
	assert.Equal(t, domain.FreshnessMissing, metrics.Freshness)
}

func component(score, quality float64) *ComponentMetrics {
	return &ComponentMetrics{
		Score: score, DataQuality: quality,
		Freshness: domain.FreshnessFresh, StalenessImpact: 1.0,
	}
}

func newTestAggregator(t *testing.T) *Aggregator {
	agg, err := NewAggregator(config.DefaultMethodology(), nopLogger())
	require.NoError(t, err)
	return agg
}

func TestAggregator_CompositeIsWeightedAverage(t *testing.T) {
	agg := newTestAggregator(t)

	m := agg.Aggregate("AAPL",
		component(80, 0.9), component(70, 0.9), component(60, 0.9), component(50, 0.9), nil)

	// 0.40*80 + 0.25*70 + 0.20*60 + 0.15*50 = 69.0
	assert.InDelta(t, 69.0, m.CompositeScore, 1e-9)
	assert.Greater(t, m.CompositeScore, 0.0)
	assert.Less(t, m.CompositeScore, 100.0)
	assert.Equal(t, "2.1.0", m.MethodologyVersion)
}

func TestAggregator_LowQualityComponentDroppedAndRenormalized(t *testing.T) {
	agg := newTestAggregator(t)

	// Sentiment quality below the 0.30 minimum: its weight redistributes.
	m := agg.Aggregate("AAPL",
		component(80, 0.9), component(70, 0.9), component(60, 0.9), component(10, 0.1), nil)

	// (0.40*80 + 0.25*70 + 0.20*60) / 0.85
	assert.InDelta(t, (0.40*80+0.25*70+0.20*60)/0.85, m.CompositeScore, 1e-9)
	assert.Equal(t, 10.0, m.SentimentScore, "component score still reported")
}

func TestAggregator_AllComponentsBelowQuality(t *testing.T) {
	agg := newTestAggregator(t)

	m := agg.Aggregate("AAPL",
		component(80, 0.1), component(70, 0.1), component(60, 0.1), component(50, 0.1), nil)

	assert.Equal(t, 0.0, m.CompositeScore)
	assert.Equal(t, domain.OutlierInsufficientData, m.OutlierCategory)
	assert.Equal(t, 50.0, m.SectorPercentile)
}

func TestAggregator_ConfidenceBandWidensWithPoorQuality(t *testing.T) {
	agg := newTestAggregator(t)

	good := agg.Aggregate("A",
		component(60, 1.0), component(60, 1.0), component(60, 1.0), component(60, 1.0), nil)
	poor := agg.Aggregate("B",
		component(60, 0.4), component(60, 0.4), component(60, 0.4), component(60, 0.4), nil)

	goodWidth := good.ConfidenceHigh - good.ConfidenceLow
	poorWidth := poor.ConfidenceHigh - poor.ConfidenceLow
	assert.Less(t, goodWidth, poorWidth)
	assert.GreaterOrEqual(t, good.ConfidenceLow, 0.0)
	assert.LessOrEqual(t, poor.ConfidenceHigh, 100.0)
}

func TestAggregator_SectorPercentileAndOutliers(t *testing.T) {
	agg := newTestAggregator(t)

	cohort := []CohortEntry{
		{Symbol: "P1", Composite: 30}, {Symbol: "P2", Composite: 40},
		{Symbol: "P3", Composite: 50}, {Symbol: "P4", Composite: 55},
		{Symbol: "P5", Composite: 60},
	}

	high := agg.Aggregate("WIN",
		component(85, 0.9), component(85, 0.9), component(85, 0.9), component(85, 0.9), cohort)
	assert.Equal(t, domain.OutlierUndervalued, high.OutlierCategory)
	assert.Equal(t, 100.0, high.SectorPercentile)

	low := agg.Aggregate("LOSE",
		component(25, 0.9), component(25, 0.9), component(25, 0.9), component(25, 0.9), cohort)
	assert.Equal(t, domain.OutlierOvervalued, low.OutlierCategory)
}
