package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// SentimentRepository handles daily_sentiment table operations.
type SentimentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSentimentRepository creates a new sentiment repository.
func NewSentimentRepository(db *sql.DB, log zerolog.Logger) *SentimentRepository {
	return &SentimentRepository{
		db:  db,
		log: log.With().Str("repo", "sentiment").Logger(),
	}
}

const sentimentColumns = `symbol, date, news_sentiment, news_count,
social_sentiment, social_count, combined_sentiment, quality`

// Upsert writes one daily aggregate, replacing an existing row for the same
// (symbol, date).
func (r *SentimentRepository) Upsert(s domain.DailySentiment) error {
	if s.Combined < -1 || s.Combined > 1 {
		return fmt.Errorf("combined sentiment out of [-1,1] for %s: %.3f", s.Symbol, s.Combined)
	}

	_, err := r.db.Exec(`INSERT OR REPLACE INTO daily_sentiment (`+sentimentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Symbol, dateparse.FormatDate(s.Date), s.NewsSentiment, s.NewsCount,
		s.SocialSentiment, s.SocialCount, s.Combined, s.Quality,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sentiment for %s: %w", s.Symbol, err)
	}
	return nil
}

// Latest returns the newest daily aggregate for a symbol, nil when none
// exists.
func (r *SentimentRepository) Latest(symbol string) (*domain.DailySentiment, error) {
	row := r.db.QueryRow(`SELECT `+sentimentColumns+` FROM daily_sentiment
		WHERE symbol = ? ORDER BY date DESC LIMIT 1`, symbol)
	s, err := scanSentiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sentiment for %s: %w", symbol, err)
	}
	return s, nil
}

// Range returns daily aggregates between two civil dates inclusive, oldest
// first.
func (r *SentimentRepository) Range(symbol string, from, to time.Time) ([]domain.DailySentiment, error) {
	rows, err := r.db.Query(`SELECT `+sentimentColumns+` FROM daily_sentiment
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		symbol, dateparse.FormatDate(from), dateparse.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment range for %s: %w", symbol, err)
	}
	defer rows.Close()

	var aggregates []domain.DailySentiment
	for rows.Next() {
		s, err := scanSentiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sentiment: %w", err)
		}
		aggregates = append(aggregates, *s)
	}
	return aggregates, rows.Err()
}

func scanSentiment(s scanner) (*domain.DailySentiment, error) {
	var agg domain.DailySentiment
	var date string
	if err := s.Scan(
		&agg.Symbol, &date, &agg.NewsSentiment, &agg.NewsCount,
		&agg.SocialSentiment, &agg.SocialCount, &agg.Combined, &agg.Quality,
	); err != nil {
		return nil, err
	}
	parsed, err := dateparse.Parse(date)
	if err != nil {
		return nil, fmt.Errorf("stored sentiment date: %w", err)
	}
	agg.Date = parsed
	return &agg, nil
}
