package scoring

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// AdmissionChecker reports whether analysis may run for a symbol. Blocked
// symbols are skipped with the blocking reasons recorded.
type AdmissionChecker interface {
	IsAnalysisAllowed(symbol string, required ...domain.Component) (bool, []string, error)
}

// SectorResolver maps a symbol to its sector.
type SectorResolver interface {
	Sector(symbol string) (string, error)
}

// ErrAnalysisBlocked is returned when a blocking quality gate prevents
// scoring a symbol.
var ErrAnalysisBlocked = errors.New("analysis blocked by quality gate")

// Engine runs the full scoring pipeline for a symbol: versioned reads,
// the four component scorers, the composite aggregation, and persistence.
type Engine struct {
	versions    *versioning.Manager
	fundamental *FundamentalScorer
	quality     *QualityScorer
	growth      *GrowthScorer
	sentiment   *SentimentScorer
	aggregator  *Aggregator
	repo        *MetricsRepository
	admission   AdmissionChecker
	sectors     SectorResolver
	lookback    int
	log         zerolog.Logger
}

func NewEngine(
	m *config.Methodology,
	versions *versioning.Manager,
	repo *MetricsRepository,
	admission AdmissionChecker,
	sectors SectorResolver,
	log zerolog.Logger,
) (*Engine, error) {
	agg, err := NewAggregator(m, log)
	if err != nil {
		return nil, err
	}
	return &Engine{
		versions:    versions,
		fundamental: NewFundamentalScorer(m, log),
		quality:     NewQualityScorer(m, log),
		growth:      NewGrowthScorer(m, log),
		sentiment:   NewSentimentScorer(m, log),
		aggregator:  agg,
		repo:        repo,
		admission:   admission,
		sectors:     sectors,
		lookback:    m.SentimentLookback,
		log:         log.With().Str("module", "scoring").Logger(),
	}, nil
}

// ScoreSymbol scores one symbol end to end and persists the result.
// Returns ErrAnalysisBlocked unless every component carries an unexpired
// approval and no blocking rule fires.
func (e *Engine) ScoreSymbol(symbol string) (*domain.CalculatedMetrics, error) {
	allowed, reasons, err := e.admission.IsAnalysisAllowed(symbol)
	if err != nil {
		return nil, fmt.Errorf("admission check for %s: %w", symbol, err)
	}
	if !allowed {
		e.log.Info().Str("symbol", symbol).Strs("reasons", reasons).
			Msg("scoring skipped: analysis blocked")
		return nil, fmt.Errorf("%w for %s: %v", ErrAnalysisBlocked, symbol, reasons)
	}

	sector, err := e.sectors.Sector(symbol)
	if err != nil {
		return nil, fmt.Errorf("sector lookup for %s: %w", symbol, err)
	}

	funds, err := e.versions.Fundamentals(symbol, 0)
	if err != nil {
		return nil, err
	}
	sent, err := e.versions.Sentiment(symbol, e.lookback, 0)
	if err != nil {
		return nil, err
	}

	fm := e.fundamental.Score(symbol, sector, funds)
	qm := e.quality.Score(symbol, sector, funds)
	gm := e.growth.Score(symbol, sector, funds)
	sm := e.sentiment.Score(symbol, sent)

	cohort, err := e.repo.SectorCohort(sector)
	if err != nil {
		return nil, err
	}

	metrics := e.aggregator.Aggregate(symbol, fm, qm, gm, sm, cohort)
	if err := e.repo.Upsert(*metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// BatchResult summarizes one ScoreUniverse run.
type BatchResult struct {
	Scored  int      `json:"scored"`
	Blocked int      `json:"blocked"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// ScoreUniverse scores every symbol in the list. Per-symbol failures are
// isolated: one bad symbol never aborts the batch.
func (e *Engine) ScoreUniverse(symbols []string) BatchResult {
	var result BatchResult
	for _, symbol := range symbols {
		_, err := e.ScoreSymbol(symbol)
		switch {
		case err == nil:
			result.Scored++
		case isBlocked(err):
			result.Blocked++
		default:
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			e.log.Error().Err(err).Str("symbol", symbol).Msg("scoring failed")
		}
	}
	e.log.Info().Int("scored", result.Scored).Int("blocked", result.Blocked).
		Int("failed", result.Failed).Msg("universe scoring finished")
	return result
}

func isBlocked(err error) bool {
	return errors.Is(err, ErrAnalysisBlocked)
}
