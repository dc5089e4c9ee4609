package scoring

import (
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// Sentiment subscore tuning.
const (
	momentumEMAPeriod = 3
	// Daily article+post count at which the volume subscore saturates.
	volumeDailyTarget = 10.0
	// Sentiment delta mapped to the full momentum range.
	momentumFullSwing = 0.5
)

// SentimentScorer scores market mood from the daily aggregates: average news
// sentiment, average social sentiment, EMA-smoothed momentum, and activity
// volume.
type SentimentScorer struct {
	weights map[string]float64
	log     zerolog.Logger
}

func NewSentimentScorer(m *config.Methodology, log zerolog.Logger) *SentimentScorer {
	return &SentimentScorer{
		weights: m.SentimentWeights,
		log:     log.With().Str("module", "scoring").Str("scorer", "sentiment").Logger(),
	}
}

func (s *SentimentScorer) Score(symbol string, v *versioning.SentimentVersion) *ComponentMetrics {
	if v == nil || v.Latest == nil {
		var warnings []string
		var versionID string
		if v != nil {
			warnings = v.Warnings
			versionID = v.VersionID
		}
		return missingMetrics(symbol, domain.ComponentSentiment, "", versionID, warnings)
	}

	subs := map[string]subscore{
		"news":     s.newsSubscore(v.History),
		"social":   s.socialSubscore(v.History),
		"momentum": s.momentumSubscore(v.History),
		"volume":   s.volumeSubscore(v.History),
	}

	composite, coverage := combineSubscores(s.weights, subs)
	final := composite * v.StalenessImpact

	s.log.Debug().Str("symbol", symbol).Float64("score", final).
		Int("history_days", len(v.History)).Msg("sentiment score calculated")

	return &ComponentMetrics{
		Symbol:          symbol,
		Component:       domain.ComponentSentiment,
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

// newsSubscore maps the count-weighted average news sentiment from [-1,1]
// onto [0,100]. Days without articles contribute nothing.
func (s *SentimentScorer) newsSubscore(history []domain.DailySentiment) subscore {
	var sum, weight float64
	for _, d := range history {
		if d.NewsCount == 0 {
			continue
		}
		sum += d.NewsSentiment * float64(d.NewsCount)
		weight += float64(d.NewsCount)
	}
	if weight == 0 {
		return subscore{valid: false}
	}
	return subscore{score: sentimentToScore(sum / weight), valid: true}
}

func (s *SentimentScorer) socialSubscore(history []domain.DailySentiment) subscore {
	var sum, weight float64
	for _, d := range history {
		if d.SocialCount == 0 {
			continue
		}
		sum += d.SocialSentiment * float64(d.SocialCount)
		weight += float64(d.SocialCount)
	}
	if weight == 0 {
		return subscore{valid: false}
	}
	return subscore{score: sentimentToScore(sum / weight), valid: true}
}

// momentumSubscore measures the direction of the combined sentiment over the
// window. The series is EMA-smoothed before taking the first-to-last delta so
// a single noisy day does not flip the trend.
func (s *SentimentScorer) momentumSubscore(history []domain.DailySentiment) subscore {
	if len(history) < 2 {
		return subscore{valid: false}
	}

	series := make([]float64, len(history))
	for i, d := range history {
		series[i] = d.Combined
	}
	if len(series) > momentumEMAPeriod {
		smoothed := talib.Ema(series, momentumEMAPeriod)
		// The warmup prefix is zero-filled; trend from the first real value.
		series = smoothed[momentumEMAPeriod-1:]
	}

	delta := series[len(series)-1] - series[0]
	score := 50 + delta/momentumFullSwing*50
	return subscore{score: clampScore(score), valid: true}
}

// volumeSubscore rewards discussion activity: average daily article+post
// count against the saturation target.
func (s *SentimentScorer) volumeSubscore(history []domain.DailySentiment) subscore {
	if len(history) == 0 {
		return subscore{valid: false}
	}
	var total float64
	for _, d := range history {
		total += float64(d.NewsCount + d.SocialCount)
	}
	avg := total / float64(len(history))
	return subscore{score: clampScore(avg / volumeDailyTarget * 100), valid: true}
}

// sentimentToScore maps [-1,1] linearly onto [0,100].
func sentimentToScore(s float64) float64 {
	return clampScore((s + 1) / 2 * 100)
}
