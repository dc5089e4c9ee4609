package marketdata

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// FundamentalsRepository handles fundamental_data table operations.
type FundamentalsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFundamentalsRepository creates a new fundamentals repository.
func NewFundamentalsRepository(db *sql.DB, log zerolog.Logger) *FundamentalsRepository {
	return &FundamentalsRepository{
		db:  db,
		log: log.With().Str("repo", "fundamentals").Logger(),
	}
}

const fundamentalColumns = `symbol, reporting_date, period_type, source,
pe_ratio, forward_pe, ev_ebitda, peg_ratio, price_to_book, price_to_sales,
free_cash_flow, market_cap, roe, roic, roa, debt_to_equity, current_ratio,
quick_ratio, gross_margin, operating_margin, profit_margin, revenue_growth,
eps_growth, forward_growth, revenue_stability, dividend_yield, payout_ratio,
beta, shares_outstanding, quality, created_at`

// Upsert writes one fundamentals snapshot, replacing any existing row with
// the same (symbol, reporting_date, period_type, source) key. Rows without
// a reporting date share one slot per (symbol, period_type, source):
// INSERT OR REPLACE cannot collapse them because SQLite treats every NULL
// in the key as distinct, so the dateless row is cleared explicitly first.
func (r *FundamentalsRepository) Upsert(rec domain.FundamentalRecord) error {
	var reportingDate interface{}
	if rec.ReportingDate != nil {
		reportingDate = dateparse.FormatDate(*rec.ReportingDate)
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if rec.ReportingDate == nil {
			if _, err := tx.Exec(`DELETE FROM fundamental_data
				WHERE symbol = ? AND reporting_date IS NULL AND period_type = ? AND source = ?`,
				rec.Symbol, rec.PeriodType, rec.Source); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO fundamental_data (`+fundamentalColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Symbol, reportingDate, rec.PeriodType, rec.Source,
			rec.PERatio, rec.ForwardPE, rec.EVEbitda, rec.PEGRatio, rec.PriceToBook, rec.PriceToSales,
			rec.FreeCashFlow, rec.MarketCap, rec.ROE, rec.ROIC, rec.ROA, rec.DebtToEquity, rec.CurrentRatio,
			rec.QuickRatio, rec.GrossMargin, rec.OperatingMargin, rec.ProfitMargin, rec.RevenueGrowth,
			rec.EPSGrowth, rec.ForwardGrowth, rec.RevenueStability, rec.DividendYield, rec.PayoutRatio,
			rec.Beta, rec.SharesOut, rec.Quality, dateparse.FormatTime(rec.CreatedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals for %s: %w", rec.Symbol, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a symbol, preferring the
// newest reporting date and falling back to collection order for rows
// without one. Nil when no snapshot exists.
func (r *FundamentalsRepository) Latest(symbol string) (*domain.FundamentalRecord, error) {
	row := r.db.QueryRow(`SELECT `+fundamentalColumns+` FROM fundamental_data
		WHERE symbol = ?
		ORDER BY reporting_date DESC NULLS LAST, created_at DESC LIMIT 1`, symbol)
	rec, err := scanFundamental(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest fundamentals for %s: %w", symbol, err)
	}
	return rec, nil
}

// History returns up to limit snapshots for a symbol, newest first.
func (r *FundamentalsRepository) History(symbol string, limit int) ([]domain.FundamentalRecord, error) {
	rows, err := r.db.Query(`SELECT `+fundamentalColumns+` FROM fundamental_data
		WHERE symbol = ?
		ORDER BY reporting_date DESC NULLS LAST, created_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var records []domain.FundamentalRecord
	for rows.Next() {
		rec, err := scanFundamental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fundamentals: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanFundamental(s scanner) (*domain.FundamentalRecord, error) {
	var rec domain.FundamentalRecord
	var reportingDate sql.NullString
	var createdAt string
	if err := s.Scan(
		&rec.Symbol, &reportingDate, &rec.PeriodType, &rec.Source,
		&rec.PERatio, &rec.ForwardPE, &rec.EVEbitda, &rec.PEGRatio, &rec.PriceToBook, &rec.PriceToSales,
		&rec.FreeCashFlow, &rec.MarketCap, &rec.ROE, &rec.ROIC, &rec.ROA, &rec.DebtToEquity, &rec.CurrentRatio,
		&rec.QuickRatio, &rec.GrossMargin, &rec.OperatingMargin, &rec.ProfitMargin, &rec.RevenueGrowth,
		&rec.EPSGrowth, &rec.ForwardGrowth, &rec.RevenueStability, &rec.DividendYield, &rec.PayoutRatio,
		&rec.Beta, &rec.SharesOut, &rec.Quality, &createdAt,
	); err != nil {
		return nil, err
	}

	if reportingDate.Valid && reportingDate.String != "" {
		if parsed, err := dateparse.Parse(reportingDate.String); err == nil {
			rec.ReportingDate = &parsed
		}
	}
	if parsed, err := dateparse.Parse(createdAt); err == nil {
		rec.CreatedAt = parsed
	}
	return &rec, nil
}
