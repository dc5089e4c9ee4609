package versioning

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/domain"
)

// Reader interfaces are the slices of the marketdata repositories the
// manager needs. Kept narrow so tests can fake them.

type FundamentalsReader interface {
	Latest(symbol string) (*domain.FundamentalRecord, error)
}

type PriceReader interface {
	Latest(symbol string) (*domain.PriceBar, error)
	Count(symbol string) (int64, error)
}

type NewsReader interface {
	LatestPublishDate(symbol string) (*time.Time, error)
	CountSince(symbol string, since time.Time) (int64, error)
}

type SentimentReader interface {
	Latest(symbol string) (*domain.DailySentiment, error)
	Range(symbol string, from, to time.Time) ([]domain.DailySentiment, error)
}

// Manager is the read-side access layer. It is stateless between calls; all
// state lives in the repositories.
type Manager struct {
	classifier *Classifier
	funds      FundamentalsReader
	prices     PriceReader
	news       NewsReader
	sentiment  SentimentReader
	now        func() time.Time
	log        zerolog.Logger
}

// NewManager creates a versioned read manager.
func NewManager(
	classifier *Classifier,
	funds FundamentalsReader,
	prices PriceReader,
	news NewsReader,
	sentiment SentimentReader,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		classifier: classifier,
		funds:      funds,
		prices:     prices,
		news:       news,
		sentiment:  sentiment,
		now:        time.Now,
		log:        log.With().Str("module", "versioning").Logger(),
	}
}

// FundamentalsVersion is a fundamentals read plus its freshness metadata.
type FundamentalsVersion struct {
	VersionedData
	Record *domain.FundamentalRecord
}

// Fundamentals returns the latest fundamentals snapshot wrapped with
// freshness metadata. maxAgeDays <= 0 disables the age filter.
func (m *Manager) Fundamentals(symbol string, maxAgeDays float64) (*FundamentalsVersion, error) {
	rec, err := m.funds.Latest(symbol)
	if err != nil {
		return nil, fmt.Errorf("versioned fundamentals read for %s: %w", symbol, err)
	}
	if rec == nil {
		return &FundamentalsVersion{VersionedData: Missing(symbol, domain.ComponentFundamentals)}, nil
	}

	createdAt := rec.CreatedAt
	vd, present := m.classifier.describe(symbol, domain.ComponentFundamentals,
		rec.ReportingDate, &createdAt, rec.Quality, maxAgeDays)
	if !present {
		return &FundamentalsVersion{VersionedData: vd}, nil
	}
	return &FundamentalsVersion{VersionedData: vd, Record: rec}, nil
}

// PriceVersion is the latest price bar plus freshness metadata and the
// total bar count for the symbol.
type PriceVersion struct {
	VersionedData
	Latest *domain.PriceBar
	Count  int64
}

// Prices returns the newest price bar wrapped with freshness metadata.
func (m *Manager) Prices(symbol string, maxAgeDays float64) (*PriceVersion, error) {
	bar, err := m.prices.Latest(symbol)
	if err != nil {
		return nil, fmt.Errorf("versioned price read for %s: %w", symbol, err)
	}
	if bar == nil {
		return &PriceVersion{VersionedData: Missing(symbol, domain.ComponentPriceData)}, nil
	}

	count, err := m.prices.Count(symbol)
	if err != nil {
		return nil, fmt.Errorf("price count for %s: %w", symbol, err)
	}

	tradeDate := bar.TradeDate
	vd, present := m.classifier.describe(symbol, domain.ComponentPriceData,
		&tradeDate, nil, bar.Quality, maxAgeDays)
	if !present {
		return &PriceVersion{VersionedData: vd}, nil
	}
	return &PriceVersion{VersionedData: vd, Latest: bar, Count: count}, nil
}

// NewsVersion is the news component's freshness metadata plus the article
// count inside the lookback window.
type NewsVersion struct {
	VersionedData
	RecentCount int64
}

// newsCompletenessTarget is the article count that yields full completeness.
const newsCompletenessTarget = 5

// News returns the news component's freshness metadata derived from the
// newest publish date.
func (m *Manager) News(symbol string, maxAgeDays float64) (*NewsVersion, error) {
	latest, err := m.news.LatestPublishDate(symbol)
	if err != nil {
		return nil, fmt.Errorf("versioned news read for %s: %w", symbol, err)
	}
	if latest == nil {
		return &NewsVersion{VersionedData: Missing(symbol, domain.ComponentNewsData)}, nil
	}

	count, err := m.news.CountSince(symbol, m.now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("news count for %s: %w", symbol, err)
	}

	completeness := float64(count) / newsCompletenessTarget
	if completeness > 1 {
		completeness = 1
	}

	vd, present := m.classifier.describe(symbol, domain.ComponentNewsData, latest, nil, 0, maxAgeDays)
	if !present {
		return &NewsVersion{VersionedData: vd}, nil
	}
	vd.Quality = QualityScore(completeness, vd.Freshness.StalenessImpact(), 1.0)
	return &NewsVersion{VersionedData: vd, RecentCount: count}, nil
}

// SentimentVersion is the latest daily aggregate plus the lookback history.
type SentimentVersion struct {
	VersionedData
	Latest  *domain.DailySentiment
	History []domain.DailySentiment
}

// Sentiment returns the sentiment component wrapped with freshness metadata
// and the aggregates inside the lookback window, oldest first.
func (m *Manager) Sentiment(symbol string, lookbackDays int, maxAgeDays float64) (*SentimentVersion, error) {
	latest, err := m.sentiment.Latest(symbol)
	if err != nil {
		return nil, fmt.Errorf("versioned sentiment read for %s: %w", symbol, err)
	}
	if latest == nil {
		return &SentimentVersion{VersionedData: Missing(symbol, domain.ComponentSentiment)}, nil
	}

	date := latest.Date
	vd, present := m.classifier.describe(symbol, domain.ComponentSentiment,
		&date, nil, latest.Quality, maxAgeDays)
	if !present {
		return &SentimentVersion{VersionedData: vd}, nil
	}

	now := m.now().UTC()
	history, err := m.sentiment.Range(symbol, now.AddDate(0, 0, -lookbackDays), now)
	if err != nil {
		return nil, fmt.Errorf("sentiment history for %s: %w", symbol, err)
	}
	return &SentimentVersion{VersionedData: vd, Latest: latest, History: history}, nil
}

// ComponentSnapshot is the condensed view the gating evaluator reads metric
// values from.
type ComponentSnapshot struct {
	Symbol      string
	Component   domain.Component
	HasData     bool
	AgeDays     float64
	Quality     float64
	RecordCount int64
	Freshness   domain.FreshnessLevel
	Warnings    []string
}

// Snapshot condenses one component's current state for rule evaluation.
func (m *Manager) Snapshot(symbol string, component domain.Component) (*ComponentSnapshot, error) {
	switch component {
	case domain.ComponentFundamentals:
		v, err := m.Fundamentals(symbol, 0)
		if err != nil {
			return nil, err
		}
		snap := snapshotFrom(v.VersionedData)
		snap.HasData = v.Record != nil
		if v.Record != nil {
			snap.RecordCount = 1
		}
		return snap, nil
	case domain.ComponentPriceData:
		v, err := m.Prices(symbol, 0)
		if err != nil {
			return nil, err
		}
		snap := snapshotFrom(v.VersionedData)
		snap.HasData = v.Latest != nil
		snap.RecordCount = v.Count
		return snap, nil
	case domain.ComponentNewsData:
		v, err := m.News(symbol, 0)
		if err != nil {
			return nil, err
		}
		snap := snapshotFrom(v.VersionedData)
		snap.HasData = v.Freshness != domain.FreshnessMissing
		snap.RecordCount = v.RecentCount
		return snap, nil
	case domain.ComponentSentiment:
		v, err := m.Sentiment(symbol, 14, 0)
		if err != nil {
			return nil, err
		}
		snap := snapshotFrom(v.VersionedData)
		snap.HasData = v.Latest != nil
		snap.RecordCount = int64(len(v.History))
		return snap, nil
	default:
		return nil, fmt.Errorf("unknown component %q", component)
	}
}

func snapshotFrom(vd VersionedData) *ComponentSnapshot {
	return &ComponentSnapshot{
		Symbol:    vd.Symbol,
		Component: vd.Component,
		AgeDays:   vd.AgeDays,
		Quality:   vd.Quality,
		Freshness: vd.Freshness,
		Warnings:  vd.Warnings,
	}
}
