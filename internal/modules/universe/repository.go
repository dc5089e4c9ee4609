// Package universe manages the tracked stock universes: the S&P 500 index
// universe kept in sync from constituent sources, and user-defined custom
// universes.
package universe

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// StockRepository handles stocks table operations. Stocks are never
// deleted: symbols that leave the index are deactivated and keep their
// history.
type StockRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStockRepository(db *sql.DB, log zerolog.Logger) *StockRepository {
	return &StockRepository{db: db, log: log.With().Str("repo", "stocks").Logger()}
}

const stockColumns = `symbol, name, sector, industry, market_cap, exchange, active, created_at, updated_at`

// Upsert writes one stock, reactivating and refreshing it when it already
// exists. CreatedAt is preserved on conflict.
func (r *StockRepository) Upsert(s domain.Stock) error {
	now := dateparse.FormatTime(time.Now())
	_, err := r.db.Exec(`INSERT INTO stocks (`+stockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			sector = CASE WHEN excluded.sector != '' THEN excluded.sector ELSE stocks.sector END,
			industry = CASE WHEN excluded.industry != '' THEN excluded.industry ELSE stocks.industry END,
			market_cap = COALESCE(excluded.market_cap, stocks.market_cap),
			exchange = CASE WHEN excluded.exchange != '' THEN excluded.exchange ELSE stocks.exchange END,
			active = 1,
			updated_at = excluded.updated_at`,
		s.Symbol, s.Name, s.Sector, s.Industry, s.MarketCap, s.Exchange, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", s.Symbol, err)
	}
	return nil
}

// Deactivate marks a stock inactive. Its collected data stays.
func (r *StockRepository) Deactivate(symbol string) error {
	_, err := r.db.Exec(`UPDATE stocks SET active = 0, updated_at = ? WHERE symbol = ?`,
		dateparse.FormatTime(time.Now()), symbol)
	if err != nil {
		return fmt.Errorf("failed to deactivate stock %s: %w", symbol, err)
	}
	return nil
}

// Get returns one stock, nil when unknown.
func (r *StockRepository) Get(symbol string) (*domain.Stock, error) {
	row := r.db.QueryRow(`SELECT `+stockColumns+` FROM stocks WHERE symbol = ?`, symbol)
	s, err := scanStock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stock %s: %w", symbol, err)
	}
	return s, nil
}

// Sector returns a stock's sector, empty for unknown symbols.
func (r *StockRepository) Sector(symbol string) (string, error) {
	var sector sql.NullString
	err := r.db.QueryRow(`SELECT sector FROM stocks WHERE symbol = ?`, symbol).Scan(&sector)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query sector for %s: %w", symbol, err)
	}
	return sector.String, nil
}

// ListActive returns every active stock ordered by symbol.
func (r *StockRepository) ListActive() ([]domain.Stock, error) {
	rows, err := r.db.Query(`SELECT ` + stockColumns + ` FROM stocks WHERE active = 1 ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active stocks: %w", err)
	}
	defer rows.Close()
	return collectStocks(rows)
}

// ActiveSymbols returns the active symbols ordered by symbol.
func (r *StockRepository) ActiveSymbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT symbol FROM stocks WHERE active = 1 ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func collectStocks(rows *sql.Rows) ([]domain.Stock, error) {
	var stocks []domain.Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, *s)
	}
	return stocks, rows.Err()
}

func scanStock(row interface{ Scan(...any) error }) (*domain.Stock, error) {
	var s domain.Stock
	var sector, industry, exchange sql.NullString
	var marketCap sql.NullInt64
	var active int
	var createdAt, updatedAt string
	if err := row.Scan(&s.Symbol, &s.Name, &sector, &industry, &marketCap,
		&exchange, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Sector = sector.String
	s.Industry = industry.String
	s.Exchange = exchange.String
	if marketCap.Valid {
		s.MarketCap = &marketCap.Int64
	}
	s.Active = active != 0

	var err error
	if s.CreatedAt, err = dateparse.Parse(createdAt); err != nil {
		return nil, fmt.Errorf("stored stock creation time: %w", err)
	}
	if s.UpdatedAt, err = dateparse.Parse(updatedAt); err != nil {
		return nil, fmt.Errorf("stored stock update time: %w", err)
	}
	return &s, nil
}
