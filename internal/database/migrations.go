package database

import (
	"database/sql"
	"fmt"
)

// migration is one forward schema step. Downgrades are not supported.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations is the ordered list of schema steps. Append only; never edit a
// shipped entry.
var migrations = []migration{
	{
		version: 1,
		name:    "core market data tables",
		sql: `
CREATE TABLE IF NOT EXISTS stocks (
    symbol        TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    sector        TEXT NOT NULL DEFAULT '',
    industry      TEXT NOT NULL DEFAULT '',
    market_cap    INTEGER,
    exchange      TEXT NOT NULL DEFAULT '',
    active        INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_data (
    symbol     TEXT NOT NULL REFERENCES stocks(symbol),
    trade_date TEXT NOT NULL,
    source     TEXT NOT NULL,
    open       INTEGER NOT NULL,
    high       INTEGER NOT NULL,
    low        INTEGER NOT NULL,
    close      INTEGER NOT NULL,
    adj_close  INTEGER NOT NULL,
    volume     INTEGER NOT NULL,
    quality    REAL NOT NULL DEFAULT 1.0,
    PRIMARY KEY (symbol, trade_date, source)
);
CREATE INDEX IF NOT EXISTS idx_price_symbol_date ON price_data(symbol, trade_date);

CREATE TABLE IF NOT EXISTS fundamental_data (
    symbol            TEXT NOT NULL REFERENCES stocks(symbol),
    reporting_date    TEXT,
    period_type       TEXT NOT NULL,
    source            TEXT NOT NULL,
    pe_ratio          REAL,
    forward_pe        REAL,
    ev_ebitda         REAL,
    peg_ratio         REAL,
    price_to_book     REAL,
    price_to_sales    REAL,
    free_cash_flow    INTEGER,
    market_cap        INTEGER,
    roe               REAL,
    roic              REAL,
    roa               REAL,
    debt_to_equity    REAL,
    current_ratio     REAL,
    quick_ratio       REAL,
    gross_margin      REAL,
    operating_margin  REAL,
    profit_margin     REAL,
    revenue_growth    REAL,
    eps_growth        REAL,
    forward_growth    REAL,
    revenue_stability REAL,
    dividend_yield    REAL,
    payout_ratio      REAL,
    beta              REAL,
    shares_outstanding INTEGER,
    quality           REAL NOT NULL DEFAULT 0.0,
    created_at        TEXT NOT NULL,
    PRIMARY KEY (symbol, reporting_date, period_type, source)
);
CREATE INDEX IF NOT EXISTS idx_fundamental_symbol_date ON fundamental_data(symbol, reporting_date DESC);

CREATE TABLE IF NOT EXISTS news_articles (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol       TEXT NOT NULL REFERENCES stocks(symbol),
    title        TEXT NOT NULL,
    summary      TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    publisher    TEXT NOT NULL DEFAULT '',
    url          TEXT,
    publish_date TEXT NOT NULL,
    sentiment    REAL NOT NULL DEFAULT 0.0,
    quality      REAL NOT NULL DEFAULT 0.0,
    created_at   TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_news_url ON news_articles(url) WHERE url IS NOT NULL AND url != '';
CREATE INDEX IF NOT EXISTS idx_news_symbol_date ON news_articles(symbol, publish_date DESC);

CREATE TABLE IF NOT EXISTS reddit_posts (
    external_id  TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL REFERENCES stocks(symbol),
    channel      TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    text         TEXT NOT NULL DEFAULT '',
    score        INTEGER NOT NULL DEFAULT 0,
    upvote_ratio REAL NOT NULL DEFAULT 0.0,
    num_comments INTEGER NOT NULL DEFAULT 0,
    created_utc  TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    sentiment    REAL NOT NULL DEFAULT 0.0,
    quality      REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_reddit_symbol_created ON reddit_posts(symbol, created_utc DESC);

CREATE TABLE IF NOT EXISTS daily_sentiment (
    symbol             TEXT NOT NULL REFERENCES stocks(symbol),
    date               TEXT NOT NULL,
    news_sentiment     REAL NOT NULL DEFAULT 0.0,
    news_count         INTEGER NOT NULL DEFAULT 0,
    social_sentiment   REAL NOT NULL DEFAULT 0.0,
    social_count       INTEGER NOT NULL DEFAULT 0,
    combined_sentiment REAL NOT NULL DEFAULT 0.0,
    quality            REAL NOT NULL DEFAULT 0.0,
    PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_sentiment_symbol_date ON daily_sentiment(symbol, date DESC);

CREATE TABLE IF NOT EXISTS calculated_metrics (
    symbol              TEXT NOT NULL REFERENCES stocks(symbol),
    calculation_date    TEXT NOT NULL,
    fundamental_score   REAL NOT NULL DEFAULT 0.0,
    quality_score       REAL NOT NULL DEFAULT 0.0,
    growth_score        REAL NOT NULL DEFAULT 0.0,
    sentiment_score     REAL NOT NULL DEFAULT 0.0,
    composite_score     REAL NOT NULL DEFAULT 0.0,
    sector_percentile   REAL NOT NULL DEFAULT 0.0,
    confidence_low      REAL NOT NULL DEFAULT 0.0,
    confidence_high     REAL NOT NULL DEFAULT 0.0,
    data_quality        REAL NOT NULL DEFAULT 0.0,
    outlier_category    TEXT NOT NULL DEFAULT 'insufficient_data',
    methodology_version TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (symbol, calculation_date)
);
CREATE INDEX IF NOT EXISTS idx_metrics_symbol_date ON calculated_metrics(symbol, calculation_date DESC);
`,
	},
	{
		version: 2,
		name:    "quality gating and data versioning",
		sql: `
CREATE TABLE IF NOT EXISTS quality_gates (
    gate_id        TEXT PRIMARY KEY,
    symbol         TEXT NOT NULL,
    component      TEXT NOT NULL,
    status         TEXT NOT NULL,
    quality_score  REAL NOT NULL DEFAULT 0.0,
    approval_ts    TEXT,
    approver       TEXT NOT NULL DEFAULT '',
    expires_at     TEXT,
    blocking_rules TEXT NOT NULL DEFAULT '[]',
    metadata       TEXT NOT NULL DEFAULT '{}',
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gates_symbol_component ON quality_gates(symbol, component, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_gates_status_expires ON quality_gates(status, expires_at);

CREATE TABLE IF NOT EXISTS data_versions (
    version_id   TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL,
    component    TEXT NOT NULL,
    snapshot_ref TEXT NOT NULL DEFAULT '',
    gate_id      TEXT NOT NULL REFERENCES quality_gates(gate_id),
    created_at   TEXT NOT NULL,
    approved_at  TEXT,
    expires_at   TEXT,
    is_active    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_versions_symbol_component ON data_versions(symbol, component, is_active);

CREATE TABLE IF NOT EXISTS quality_gate_rules (
    component       TEXT NOT NULL,
    metric_name     TEXT NOT NULL,
    threshold       REAL NOT NULL,
    operator        TEXT NOT NULL,
    blocks_analysis INTEGER NOT NULL DEFAULT 0,
    description     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (component, metric_name)
);
`,
	},
}

// Migrate applies forward migrations in order. The current version is stored
// in the schema_version metadata table; each step runs in its own
// transaction and bumps the version on commit.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := WithTransaction(db.conn, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			if _, err := tx.Exec(
				`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
				m.version,
			); err != nil {
				return fmt.Errorf("migration %d: failed to record version: %w", m.version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func (db *DB) SchemaVersion() (int, error) {
	var version sql.NullInt64
	err := db.conn.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
