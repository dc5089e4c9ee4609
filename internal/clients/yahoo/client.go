// Package yahoo fetches prices, company profiles, fundamentals, and news
// from the Yahoo Finance JSON endpoints.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/clients/fetch"
	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

const (
	chartBaseURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	summaryBaseURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary"
	searchBaseURL  = "https://query1.finance.yahoo.com/v1/finance/search"

	userAgent  = "Mozilla/5.0 (compatible; equityscope/1.0)"
	sourceName = "yahoo"
)

// ErrNoData is returned when the source answers but carries nothing usable.
var ErrNoData = errors.New("no data in response")

// Client is the Yahoo Finance adapter.
type Client struct {
	fetcher *fetch.Client
	log     zerolog.Logger
}

func NewClient(limit config.RateLimit, log zerolog.Logger) *Client {
	return &Client{
		fetcher: fetch.New(sourceName, limit, log),
		log:     log.With().Str("client", sourceName).Logger(),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"User-Agent": userAgent}
}

// Name implements config.SelfTester.
func (c *Client) Name() string { return sourceName }

// SelfTest fetches one day of AAPL bars to verify connectivity.
func (c *Client) SelfTest(ctx context.Context) domain.APIStatus {
	_, err := c.DailyBars(ctx, "AAPL", 5)
	switch {
	case err == nil:
		return domain.APIHealthy
	case errors.Is(err, fetch.ErrRateLimited):
		return domain.APIRateLimited
	default:
		return domain.APIFailed
	}
}

// Probe checks that a symbol resolves at the source. Used by universe
// refresh before admitting new constituents.
func (c *Client) Probe(ctx context.Context, symbol string) error {
	bars, err := c.DailyBars(ctx, symbol, 5)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("%w: probe for %s", ErrNoData, symbol)
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Exchange string `json:"exchangeName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyBars fetches up to days of daily OHLCV bars, oldest first. Bars with
// gaps in any OHLC field are skipped; fully parsed bars still run through
// domain validation at the repository boundary.
func (c *Client) DailyBars(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error) {
	u := fmt.Sprintf("%s/%s?range=%s&interval=1d&events=div%%2Csplit",
		chartBaseURL, url.PathEscape(symbol), rangeParam(days))

	var resp chartResponse
	if err := c.fetcher.GetJSON(ctx, u, c.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart error for %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: chart for %s", ErrNoData, symbol)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.Adjclose) > 0 {
		adj = result.Indicators.Adjclose[0].Adjclose
	}

	bars := make([]domain.PriceBar, 0, len(result.Timestamp))
	var skipped int
	for i, ts := range result.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || cl == nil {
			skipped++
			continue
		}
		adjClose := cl
		if a := at(adj, i); a != nil {
			adjClose = a
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		bars = append(bars, domain.PriceBar{
			Symbol:    symbol,
			TradeDate: dateparse.CivilDate(time.Unix(ts, 0).UTC()),
			Source:    sourceName,
			Open:      toCents(*o),
			High:      toCents(*h),
			Low:       toCents(*l),
			Close:     toCents(*cl),
			AdjClose:  toCents(*adjClose),
			Volume:    volume,
			Quality:   1.0,
		})
	}

	if skipped > 0 {
		// Gaps degrade the whole batch's quality proportionally.
		quality := float64(len(bars)) / float64(len(bars)+skipped)
		for i := range bars {
			bars[i].Quality = quality
		}
		c.log.Debug().Str("symbol", symbol).Int("skipped", skipped).
			Float64("quality", quality).Msg("chart response had gaps")
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: all bars empty for %s", ErrNoData, symbol)
	}
	return bars, nil
}

// Profile is the company identity block from quoteSummary.
type Profile struct {
	Symbol    string
	Name      string
	Sector    string
	Industry  string
	Exchange  string
	MarketCap *int64
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []map[string]map[string]any `json:"result"`
		Error  *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// FetchProfile fetches the company profile.
func (c *Client) FetchProfile(ctx context.Context, symbol string) (*Profile, error) {
	raw, err := c.quoteSummary(ctx, symbol, "assetProfile,price")
	if err != nil {
		return nil, err
	}

	profile := &Profile{Symbol: symbol, Name: symbol}
	if asset, ok := raw["assetProfile"]; ok {
		profile.Sector = str(asset["sector"])
		profile.Industry = str(asset["industry"])
	}
	if price, ok := raw["price"]; ok {
		if name := str(price["longName"]); name != "" {
			profile.Name = name
		}
		profile.Exchange = str(price["exchangeName"])
		if mc, ok := rawNumber(price["marketCap"]); ok {
			cents := int64(math.Round(mc * 100))
			profile.MarketCap = &cents
		}
	}
	return profile, nil
}

// FetchFundamentals fetches the ratio snapshot. Missing modules or fields
// stay nil on the record; Quality reflects how many of the core ratios came
// back.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*domain.FundamentalRecord, error) {
	raw, err := c.quoteSummary(ctx, symbol,
		"summaryDetail,defaultKeyStatistics,financialData,calendarEvents")
	if err != nil {
		return nil, err
	}

	rec := &domain.FundamentalRecord{
		Symbol:     symbol,
		PeriodType: "ttm",
		Source:     sourceName,
		CreatedAt:  time.Now().UTC(),
	}

	if detail, ok := raw["summaryDetail"]; ok {
		rec.PERatio = num(detail["trailingPE"])
		rec.ForwardPE = num(detail["forwardPE"])
		rec.DividendYield = num(detail["dividendYield"])
		rec.PayoutRatio = num(detail["payoutRatio"])
		rec.Beta = num(detail["beta"])
		if mc, ok := rawNumber(detail["marketCap"]); ok {
			cents := int64(math.Round(mc * 100))
			rec.MarketCap = &cents
		}
	}
	if stats, ok := raw["defaultKeyStatistics"]; ok {
		rec.EVEbitda = num(stats["enterpriseToEbitda"])
		rec.PEGRatio = num(stats["pegRatio"])
		rec.PriceToBook = num(stats["priceToBook"])
		if so, ok := rawNumber(stats["sharesOutstanding"]); ok {
			shares := int64(so)
			rec.SharesOut = &shares
		}
	}
	if fin, ok := raw["financialData"]; ok {
		rec.ROE = num(fin["returnOnEquity"])
		rec.ROA = num(fin["returnOnAssets"])
		rec.DebtToEquity = scaleDown(num(fin["debtToEquity"]), 100) // reported in percent
		rec.CurrentRatio = num(fin["currentRatio"])
		rec.QuickRatio = num(fin["quickRatio"])
		rec.GrossMargin = num(fin["grossMargins"])
		rec.OperatingMargin = num(fin["operatingMargins"])
		rec.ProfitMargin = num(fin["profitMargins"])
		rec.RevenueGrowth = num(fin["revenueGrowth"])
		rec.EPSGrowth = num(fin["earningsGrowth"])
		if fcf, ok := rawNumber(fin["freeCashflow"]); ok {
			cents := int64(math.Round(fcf * 100))
			rec.FreeCashFlow = &cents
		}
	}
	// Reporting date only when the source states it; never fabricated.
	if cal, ok := raw["calendarEvents"]; ok {
		if ed := str(cal["exDividendDate"]); ed != "" {
			if t, err := dateparse.Parse(ed); err == nil {
				rec.ReportingDate = &t
			}
		}
	}

	rec.Quality = fundamentalsCompleteness(rec)
	if rec.Quality == 0 {
		return nil, fmt.Errorf("%w: fundamentals for %s", ErrNoData, symbol)
	}
	return rec, nil
}

// coreRatios drive the completeness fraction of a fundamentals fetch.
var coreRatios = []string{
	"pe_ratio", "ev_ebitda", "peg_ratio", "fcf_yield",
	"roe", "debt_to_equity", "current_ratio", "revenue_growth",
}

func fundamentalsCompleteness(rec *domain.FundamentalRecord) float64 {
	var present int
	for _, name := range coreRatios {
		if _, ok := rec.Ratio(name); ok {
			present++
		}
	}
	return float64(present) / float64(len(coreRatios))
}

type searchResponse struct {
	News []struct {
		Title             string `json:"title"`
		Publisher         string `json:"publisher"`
		Link              string `json:"link"`
		ProviderPublishTS int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// FetchNews fetches recent articles for a symbol. Articles without a
// publish timestamp are dropped: the publish date is never substituted with
// the collection time.
func (c *Client) FetchNews(ctx context.Context, symbol string) ([]domain.NewsArticle, int, error) {
	u := fmt.Sprintf("%s?q=%s&newsCount=20&quotesCount=0", searchBaseURL, url.QueryEscape(symbol))

	var resp searchResponse
	if err := c.fetcher.GetJSON(ctx, u, c.headers(), &resp); err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	articles := make([]domain.NewsArticle, 0, len(resp.News))
	var dropped int
	for _, item := range resp.News {
		if item.ProviderPublishTS <= 0 {
			dropped++
			c.log.Warn().Str("symbol", symbol).Str("title", item.Title).
				Msg("article missing publish timestamp, dropped")
			continue
		}
		articles = append(articles, domain.NewsArticle{
			Symbol:      symbol,
			Title:       item.Title,
			Publisher:   item.Publisher,
			URL:         item.Link,
			PublishDate: time.Unix(item.ProviderPublishTS, 0).UTC(),
			Quality:     1.0,
			CreatedAt:   now,
		})
	}
	return articles, dropped, nil
}

func (c *Client) quoteSummary(ctx context.Context, symbol, modules string) (map[string]map[string]any, error) {
	u := fmt.Sprintf("%s/%s?modules=%s", summaryBaseURL, url.PathEscape(symbol), url.QueryEscape(modules))

	var resp summaryResponse
	if err := c.fetcher.GetJSON(ctx, u, c.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quote summary error for %s: %s", symbol, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: quote summary for %s", ErrNoData, symbol)
	}
	return resp.QuoteSummary.Result[0], nil
}

func rangeParam(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

func toCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

// Yahoo wraps numbers as {"raw": 1.23, "fmt": "1.23"}. num unwraps either
// shape into an optional float.
func num(v any) *float64 {
	f, ok := rawNumber(v)
	if !ok {
		return nil
	}
	return &f
}

func rawNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case map[string]any:
		if raw, ok := t["raw"].(float64); ok {
			return raw, true
		}
	}
	return 0, false
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if f, ok := t["fmt"].(string); ok {
			return f
		}
	}
	return ""
}

func scaleDown(v *float64, by float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v / by
	return &scaled
}
