package scoring

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// MetricsRepository handles calculated_metrics table operations.
type MetricsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMetricsRepository creates a new metrics repository.
func NewMetricsRepository(db *sql.DB, log zerolog.Logger) *MetricsRepository {
	return &MetricsRepository{
		db:  db,
		log: log.With().Str("repo", "metrics").Logger(),
	}
}

const metricsColumns = `symbol, calculation_date, fundamental_score, quality_score,
growth_score, sentiment_score, composite_score, sector_percentile,
confidence_low, confidence_high, data_quality, outlier_category, methodology_version`

// Upsert writes one scoring result, replacing an existing row for the same
// (symbol, calculation_date).
func (r *MetricsRepository) Upsert(m domain.CalculatedMetrics) error {
	_, err := r.db.Exec(`INSERT OR REPLACE INTO calculated_metrics (`+metricsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Symbol, dateparse.FormatDate(m.CalculationDate),
		m.FundamentalScore, m.QualityScore, m.GrowthScore, m.SentimentScore,
		m.CompositeScore, m.SectorPercentile,
		m.ConfidenceLow, m.ConfidenceHigh, m.DataQuality,
		string(m.OutlierCategory), m.MethodologyVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics for %s: %w", m.Symbol, err)
	}
	return nil
}

// Latest returns the newest scoring result for a symbol, nil when none
// exists.
func (r *MetricsRepository) Latest(symbol string) (*domain.CalculatedMetrics, error) {
	row := r.db.QueryRow(`SELECT `+metricsColumns+` FROM calculated_metrics
		WHERE symbol = ? ORDER BY calculation_date DESC LIMIT 1`, symbol)
	m, err := scanMetrics(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest metrics for %s: %w", symbol, err)
	}
	return m, nil
}

// SectorCohort returns the newest composite per active symbol in a sector,
// for the percentile calculation.
func (r *MetricsRepository) SectorCohort(sector string) ([]CohortEntry, error) {
	rows, err := r.db.Query(`
		SELECT m.symbol, s.sector, m.composite_score
		FROM calculated_metrics m
		JOIN stocks s ON s.symbol = m.symbol
		WHERE s.sector = ? AND s.active = 1
		  AND m.calculation_date = (
			SELECT MAX(calculation_date) FROM calculated_metrics
			WHERE symbol = m.symbol
		  )`, sector)
	if err != nil {
		return nil, fmt.Errorf("failed to query sector cohort for %s: %w", sector, err)
	}
	defer rows.Close()

	var cohort []CohortEntry
	for rows.Next() {
		var e CohortEntry
		if err := rows.Scan(&e.Symbol, &e.Sector, &e.Composite); err != nil {
			return nil, fmt.Errorf("failed to scan cohort entry: %w", err)
		}
		cohort = append(cohort, e)
	}
	return cohort, rows.Err()
}

// TopComposites returns the newest scoring results ordered by composite
// descending, capped at limit.
func (r *MetricsRepository) TopComposites(limit int) ([]domain.CalculatedMetrics, error) {
	rows, err := r.db.Query(`SELECT `+metricsColumns+` FROM calculated_metrics m
		WHERE m.calculation_date = (
			SELECT MAX(calculation_date) FROM calculated_metrics
			WHERE symbol = m.symbol
		)
		ORDER BY composite_score DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top composites: %w", err)
	}
	defer rows.Close()

	var results []domain.CalculatedMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		results = append(results, *m)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetrics(s scanner) (*domain.CalculatedMetrics, error) {
	var m domain.CalculatedMetrics
	var date, category string
	if err := s.Scan(
		&m.Symbol, &date, &m.FundamentalScore, &m.QualityScore,
		&m.GrowthScore, &m.SentimentScore, &m.CompositeScore, &m.SectorPercentile,
		&m.ConfidenceLow, &m.ConfidenceHigh, &m.DataQuality,
		&category, &m.MethodologyVersion,
	); err != nil {
		return nil, err
	}
	parsed, err := dateparse.Parse(date)
	if err != nil {
		return nil, fmt.Errorf("stored calculation date: %w", err)
	}
	m.CalculationDate = parsed
	m.OutlierCategory = domain.OutlierCategory(category)
	return &m, nil
}
