// Package marketdata holds the typed repositories for collected market data:
// price bars, fundamentals, news, social posts, and daily sentiment.
package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// PriceRepository handles price_data table operations.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

const priceColumns = `symbol, trade_date, source, open, high, low, close, adj_close, volume, quality`

// InsertBatch writes a batch of bars in a single transaction. Bars failing
// validation abort the batch; the error names the offending record index.
func (r *PriceRepository) InsertBatch(bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO price_data (` + priceColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, trade_date, source) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low,
				close=excluded.close, adj_close=excluded.adj_close,
				volume=excluded.volume, quality=excluded.quality`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for i, bar := range bars {
			if err := bar.Validate(); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if _, err := stmt.Exec(
				bar.Symbol, dateparse.FormatDate(bar.TradeDate), bar.Source,
				bar.Open, bar.High, bar.Low, bar.Close, bar.AdjClose,
				bar.Volume, bar.Quality,
			); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
		return nil
	})
}

// Latest returns the newest bar for a symbol, nil when none exists.
func (r *PriceRepository) Latest(symbol string) (*domain.PriceBar, error) {
	row := r.db.QueryRow(`SELECT `+priceColumns+` FROM price_data
		WHERE symbol = ? ORDER BY trade_date DESC LIMIT 1`, symbol)
	bar, err := scanPriceBar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest price for %s: %w", symbol, err)
	}
	return bar, nil
}

// Range returns bars for a symbol between two civil dates, inclusive,
// oldest first.
func (r *PriceRepository) Range(symbol string, from, to time.Time) ([]domain.PriceBar, error) {
	rows, err := r.db.Query(`SELECT `+priceColumns+` FROM price_data
		WHERE symbol = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC`,
		symbol, dateparse.FormatDate(from), dateparse.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query price range for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		bar, err := scanPriceBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, *bar)
	}
	return bars, rows.Err()
}

// Count returns the number of bars stored for a symbol.
func (r *PriceRepository) Count(symbol string) (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM price_data WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count price bars for %s: %w", symbol, err)
	}
	return count, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPriceBar(s scanner) (*domain.PriceBar, error) {
	var bar domain.PriceBar
	var tradeDate string
	if err := s.Scan(
		&bar.Symbol, &tradeDate, &bar.Source,
		&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.AdjClose,
		&bar.Volume, &bar.Quality,
	); err != nil {
		return nil, err
	}
	parsed, err := dateparse.Parse(tradeDate)
	if err != nil {
		return nil, fmt.Errorf("stored trade_date: %w", err)
	}
	bar.TradeDate = parsed
	return &bar, nil
}
