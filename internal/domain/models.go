// Package domain holds the pure entity types shared across modules.
// No infrastructure dependencies live here.
package domain

import (
	"fmt"
	"time"
)

// Stock is a tracked security. Primary key is the uppercase symbol.
// Stocks are never deleted, only deactivated when they leave an index.
type Stock struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Sector    string    `json:"sector,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	MarketCap *int64    `json:"market_cap,omitempty"` // minor units (cents)
	Exchange  string    `json:"exchange,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceBar is one OHLCV bar. Prices are stored in minor units (cents).
// Keyed by (symbol, trade_date, source).
type PriceBar struct {
	Symbol    string    `json:"symbol"`
	TradeDate time.Time `json:"trade_date"` // civil date, UTC midnight
	Source    string    `json:"source"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Close     int64     `json:"close"`
	AdjClose  int64     `json:"adj_close"`
	Volume    int64     `json:"volume"`
	Quality   float64   `json:"quality"` // [0,1]
}

// Validate checks the OHLCV invariants. A bar that fails validation is
// dropped by the collector with a VALIDATION_FAILED outcome.
func (b PriceBar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price in bar %s/%s", b.Symbol, b.TradeDate.Format("2006-01-02"))
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume in bar %s/%s", b.Symbol, b.TradeDate.Format("2006-01-02"))
	}
	maxOC := b.Open
	if b.Close > maxOC {
		maxOC = b.Close
	}
	minOC := b.Open
	if b.Close < minOC {
		minOC = b.Close
	}
	if b.High < maxOC || b.High < b.Low {
		return fmt.Errorf("high %d below open/close/low in bar %s/%s", b.High, b.Symbol, b.TradeDate.Format("2006-01-02"))
	}
	if b.Low > minOC {
		return fmt.Errorf("low %d above open/close in bar %s/%s", b.Low, b.Symbol, b.TradeDate.Format("2006-01-02"))
	}
	return nil
}

// FundamentalRecord is a full snapshot of ratios for one reporting period.
// Keyed by (symbol, reporting_date, period_type, source). Every ratio is
// nullable: sources routinely omit fields, and scorers redistribute weight
// around the gaps. CreatedAt records the collection instant, which is
// distinct from ReportingDate.
type FundamentalRecord struct {
	Symbol        string     `json:"symbol"`
	ReportingDate *time.Time `json:"reporting_date,omitempty"` // nil when the source does not state it
	PeriodType    string     `json:"period_type"`              // annual, quarterly, ttm
	Source        string     `json:"source"`

	PERatio          *float64 `json:"pe_ratio,omitempty"`
	ForwardPE        *float64 `json:"forward_pe,omitempty"`
	EVEbitda         *float64 `json:"ev_ebitda,omitempty"`
	PEGRatio         *float64 `json:"peg_ratio,omitempty"`
	PriceToBook      *float64 `json:"price_to_book,omitempty"`
	PriceToSales     *float64 `json:"price_to_sales,omitempty"`
	FreeCashFlow     *int64   `json:"free_cash_flow,omitempty"` // minor units
	MarketCap        *int64   `json:"market_cap,omitempty"`     // minor units
	ROE              *float64 `json:"roe,omitempty"`
	ROIC             *float64 `json:"roic,omitempty"`
	ROA              *float64 `json:"roa,omitempty"`
	DebtToEquity     *float64 `json:"debt_to_equity,omitempty"`
	CurrentRatio     *float64 `json:"current_ratio,omitempty"`
	QuickRatio       *float64 `json:"quick_ratio,omitempty"`
	GrossMargin      *float64 `json:"gross_margin,omitempty"`
	OperatingMargin  *float64 `json:"operating_margin,omitempty"`
	ProfitMargin     *float64 `json:"profit_margin,omitempty"`
	RevenueGrowth    *float64 `json:"revenue_growth,omitempty"`
	EPSGrowth        *float64 `json:"eps_growth,omitempty"`
	ForwardGrowth    *float64 `json:"forward_growth,omitempty"`
	RevenueStability *float64 `json:"revenue_stability,omitempty"`
	DividendYield    *float64 `json:"dividend_yield,omitempty"`
	PayoutRatio      *float64 `json:"payout_ratio,omitempty"`
	Beta             *float64 `json:"beta,omitempty"`
	SharesOut        *int64   `json:"shares_outstanding,omitempty"`

	Quality   float64   `json:"quality"` // [0,1], completeness-derived
	CreatedAt time.Time `json:"created_at"`
}

// FCFYield derives free-cash-flow yield from FCF and market cap.
// Returns false when either input is missing or market cap is non-positive.
func (f *FundamentalRecord) FCFYield() (float64, bool) {
	if f.FreeCashFlow == nil || f.MarketCap == nil || *f.MarketCap <= 0 {
		return 0, false
	}
	return float64(*f.FreeCashFlow) / float64(*f.MarketCap), true
}

// Ratio returns a named ratio as a typed optional. Scorers read through this
// accessor so missing fields stay explicit.
func (f *FundamentalRecord) Ratio(name string) (float64, bool) {
	var p *float64
	switch name {
	case "pe_ratio":
		p = f.PERatio
	case "forward_pe":
		p = f.ForwardPE
	case "ev_ebitda":
		p = f.EVEbitda
	case "peg_ratio":
		p = f.PEGRatio
	case "price_to_book":
		p = f.PriceToBook
	case "price_to_sales":
		p = f.PriceToSales
	case "roe":
		p = f.ROE
	case "roic":
		p = f.ROIC
	case "roa":
		p = f.ROA
	case "debt_to_equity":
		p = f.DebtToEquity
	case "current_ratio":
		p = f.CurrentRatio
	case "quick_ratio":
		p = f.QuickRatio
	case "gross_margin":
		p = f.GrossMargin
	case "operating_margin":
		p = f.OperatingMargin
	case "profit_margin":
		p = f.ProfitMargin
	case "revenue_growth":
		p = f.RevenueGrowth
	case "eps_growth":
		p = f.EPSGrowth
	case "forward_growth":
		p = f.ForwardGrowth
	case "revenue_stability":
		p = f.RevenueStability
	case "dividend_yield":
		p = f.DividendYield
	case "payout_ratio":
		p = f.PayoutRatio
	case "beta":
		p = f.Beta
	case "fcf_yield":
		return f.FCFYield()
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// NewsArticle is one collected article. PublishDate is the article's own
// timestamp from the source, never the collection time.
type NewsArticle struct {
	ID          int64     `json:"id,omitempty"`
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	URL         string    `json:"url,omitempty"` // unique when present
	PublishDate time.Time `json:"publish_date"`
	Sentiment   float64   `json:"sentiment"` // [-1,1]
	Quality     float64   `json:"quality"`   // [0,1]
	CreatedAt   time.Time `json:"created_at"`
}

// SocialPost is one collected social media post, unique by external id.
type SocialPost struct {
	ExternalID  string    `json:"external_id"`
	Symbol      string    `json:"symbol"`
	Channel     string    `json:"channel"` // subreddit or channel name
	Author      string    `json:"author,omitempty"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text,omitempty"`
	Score       int64     `json:"score"` // engagement score
	UpvoteRatio float64   `json:"upvote_ratio"`
	NumComments int64     `json:"num_comments"`
	CreatedUTC  time.Time `json:"created_utc"` // external timestamp
	URL         string    `json:"url,omitempty"`
	Sentiment   float64   `json:"sentiment"` // [-1,1]
	Quality     float64   `json:"quality"`   // [0,1]
}

// DailySentiment aggregates news and social sentiment per (symbol, day).
type DailySentiment struct {
	Symbol          string    `json:"symbol"`
	Date            time.Time `json:"date"` // civil date, UTC midnight
	NewsSentiment   float64   `json:"news_sentiment"`
	NewsCount       int64     `json:"news_count"`
	SocialSentiment float64   `json:"social_sentiment"`
	SocialCount     int64     `json:"social_count"`
	Combined        float64   `json:"combined_sentiment"` // [-1,1]
	Quality         float64   `json:"quality"`            // [0,1]
}

// CalculatedMetrics is the persisted scoring output for one symbol and day.
type CalculatedMetrics struct {
	Symbol             string          `json:"symbol"`
	CalculationDate    time.Time       `json:"calculation_date"`
	FundamentalScore   float64         `json:"fundamental_score"`
	QualityScore       float64         `json:"quality_score"`
	GrowthScore        float64         `json:"growth_score"`
	SentimentScore     float64         `json:"sentiment_score"`
	CompositeScore     float64         `json:"composite_score"`
	SectorPercentile   float64         `json:"sector_percentile"`
	ConfidenceLow      float64         `json:"confidence_low"`
	ConfidenceHigh     float64         `json:"confidence_high"`
	DataQuality        float64         `json:"data_quality"`
	OutlierCategory    OutlierCategory `json:"outlier_category"`
	MethodologyVersion string          `json:"methodology_version"`
}

// QualityGate is one approval/rejection record for a (symbol, component)
// pair. Gates are append-only; the newest row per pair wins.
type QualityGate struct {
	GateID        string            `json:"gate_id"`
	Symbol        string            `json:"symbol"`
	Component     Component         `json:"component"`
	Status        GateStatus        `json:"status"`
	QualityScore  float64           `json:"quality_score"`
	ApprovalTS    *time.Time        `json:"approval_ts,omitempty"`
	Approver      string            `json:"approver,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	BlockingRules []string          `json:"blocking_rules,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// DataVersion ties an approval to a snapshot of the data it approved.
// At most one version per (symbol, component) is active.
type DataVersion struct {
	VersionID   string     `json:"version_id"`
	Symbol      string     `json:"symbol"`
	Component   Component  `json:"component"`
	SnapshotRef string     `json:"snapshot_ref"`
	GateID      string     `json:"gate_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// QualityRule is one configured gate rule. Rules are configuration, not
// per-symbol state: the same rule applies to every symbol.
type QualityRule struct {
	Component      Component `json:"component"`
	MetricName     string    `json:"metric_name"`
	Threshold      float64   `json:"threshold"`
	Operator       string    `json:"operator"` // >=, <=, >, <, ==
	BlocksAnalysis bool      `json:"blocks_analysis"`
	Description    string    `json:"description,omitempty"`
}

// Universe is a named set of tracked symbols.
type Universe struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Symbols   []string  `json:"symbols"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SP500UniverseID is the built-in index universe. It can be refreshed but
// never deleted.
const SP500UniverseID = "sp500"
