package collection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/equityscope/internal/clients/fetch"
	"github.com/aristath/equityscope/internal/clients/yahoo"
	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/events"
	"github.com/aristath/equityscope/internal/modules/marketdata"
	"github.com/aristath/equityscope/internal/modules/sentiment"
	"github.com/aristath/equityscope/internal/modules/universe"
)

var testDBCounter atomic.Int64

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := fmt.Sprintf("file:collection%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := database.New(database.Config{Path: path, Name: "analytics"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// fakeMarket serves canned payloads per symbol, with optional errors.
type fakeMarket struct {
	bars      map[string][]domain.PriceBar
	errByType map[domain.DataType]error
}

func (f *fakeMarket) failure(t domain.DataType) error {
	if f.errByType == nil {
		return nil
	}
	return f.errByType[t]
}

func (f *fakeMarket) FetchProfile(_ context.Context, symbol string) (*yahoo.Profile, error) {
	if err := f.failure(domain.DataTypeProfile); err != nil {
		return nil, err
	}
	return &yahoo.Profile{Symbol: symbol, Name: symbol + " Inc.", Sector: "Technology"}, nil
}

func (f *fakeMarket) DailyBars(_ context.Context, symbol string, _ int) ([]domain.PriceBar, error) {
	if err := f.failure(domain.DataTypePrices); err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeMarket) FetchFundamentals(_ context.Context, symbol string) (*domain.FundamentalRecord, error) {
	if err := f.failure(domain.DataTypeFundamentals); err != nil {
		return nil, err
	}
	pe := 18.0
	return &domain.FundamentalRecord{
		Symbol: symbol, PeriodType: "ttm", Source: "yahoo",
		PERatio: &pe, Quality: 0.5, CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeMarket) FetchNews(_ context.Context, symbol string) ([]domain.NewsArticle, int, error) {
	if err := f.failure(domain.DataTypeNews); err != nil {
		return nil, 0, err
	}
	return []domain.NewsArticle{{
		Symbol: symbol, Title: symbol + " beats estimates", URL: "https://news.example/" + symbol,
		PublishDate: time.Now().UTC().Add(-2 * time.Hour), Quality: 1, CreatedAt: time.Now().UTC(),
	}}, 0, nil
}

type fakeSocial struct{ err error }

func (f *fakeSocial) FetchPosts(_ context.Context, symbol string) ([]domain.SocialPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.SocialPost{{
		ExternalID: "p1-" + symbol, Symbol: symbol, Channel: "stocks",
		Title: "very bullish on " + symbol, Score: 42, CreatedUTC: time.Now().UTC().Add(-3 * time.Hour),
		Quality: 1,
	}}, nil
}

func validBars(symbol string) []domain.PriceBar {
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	var bars []domain.PriceBar
	for i := 0; i < 3; i++ {
		bars = append(bars, domain.PriceBar{
			Symbol: symbol, TradeDate: day.AddDate(0, 0, i), Source: "yahoo",
			Open: 10000, High: 10500, Low: 9900, Close: 10300, AdjClose: 10300,
			Volume: 1000, Quality: 1,
		})
	}
	return bars
}

func newTestOrchestrator(t *testing.T, market MarketSource, social SocialSource) (*Orchestrator, *events.Bus, Sinks) {
	t.Helper()
	db := setupTestDB(t)
	log := testLogger()

	sinks := Sinks{
		Stocks:       universe.NewStockRepository(db, log),
		Prices:       marketdata.NewPriceRepository(db, log),
		Fundamentals: marketdata.NewFundamentalsRepository(db, log),
		News:         marketdata.NewNewsRepository(db, log),
		Social:       marketdata.NewSocialRepository(db, log),
		Sentiment:    marketdata.NewSentimentRepository(db, log),
	}
	bus := events.NewBus()
	o := NewOrchestrator(market, social, sinks, sentiment.NewLexiconClassifier(), bus, 2,
		map[string]config.RateLimit{
			"yahoo":  {MaxRequests: 60, WindowSeconds: 60},
			"reddit": {MaxRequests: 60, WindowSeconds: 60},
		}, log)
	return o, bus, sinks
}

func TestCollect_FullRun(t *testing.T) {
	market := &fakeMarket{bars: map[string][]domain.PriceBar{
		"AAPL": validBars("AAPL"), "GOOGL": validBars("GOOGL"),
	}}
	o, bus, sinks := newTestOrchestrator(t, market, &fakeSocial{})

	progress, cancel := bus.Subscribe(64)
	defer cancel()

	report := o.Collect(context.Background(), []string{"AAPL", "GOOGL"}, nil)

	assert.Equal(t, 2, report.Symbols)
	assert.Len(t, report.Tasks, 10, "5 types x 2 symbols")
	assert.Equal(t, 10, report.Counts[OutcomeOK])
	assert.InDelta(t, 1.0, report.SuccessRatio(), 1e-9)

	// Collected data landed: prices, news sentiment aggregates.
	latest, err := sinks.Prices.(*marketdata.PriceRepository).Latest("AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)

	agg, err := sinks.Sentiment.(*marketdata.SentimentRepository).Latest("AAPL")
	require.NoError(t, err)
	require.NotNil(t, agg, "sentiment aggregation ran after news+social")
	assert.Greater(t, agg.Combined, 0.0, "bullish fixtures classify positive")

	// Progress events fired: started, per-symbol progress, finished.
	var types []events.EventType
	for len(progress) > 0 {
		types = append(types, (<-progress).Type)
	}
	assert.Contains(t, types, events.CollectionStarted)
	assert.Contains(t, types, events.CollectionProgress)
	assert.Contains(t, types, events.CollectionFinished)
}

func TestCollect_SelectiveTypes(t *testing.T) {
	market := &fakeMarket{bars: map[string][]domain.PriceBar{"AAPL": validBars("AAPL")}}
	o, _, sinks := newTestOrchestrator(t, market, &fakeSocial{})
	require.NoError(t, sinks.Stocks.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple"}))

	report := o.Collect(context.Background(), []string{"AAPL"},
		[]domain.DataType{domain.DataTypePrices})

	require.Len(t, report.Tasks, 1)
	assert.Equal(t, domain.DataTypePrices, report.Tasks[0].Type)
	assert.Equal(t, 3, report.Tasks[0].Rows)
}

func TestCollect_OutcomeTaxonomy(t *testing.T) {
	market := &fakeMarket{
		bars: map[string][]domain.PriceBar{"AAPL": validBars("AAPL")},
		errByType: map[domain.DataType]error{
			domain.DataTypeFundamentals: fmt.Errorf("%w: summary", yahoo.ErrNoData),
			domain.DataTypeNews:         fmt.Errorf("%w: 429", fetch.ErrRateLimited),
		},
	}
	o, _, _ := newTestOrchestrator(t, market, &fakeSocial{err: errors.New("reddit down")})

	report := o.Collect(context.Background(), []string{"AAPL"}, nil)

	outcomes := map[domain.DataType]Outcome{}
	for _, task := range report.Tasks {
		outcomes[task.Type] = task.Outcome
	}
	assert.Equal(t, OutcomeOK, outcomes[domain.DataTypeProfile])
	assert.Equal(t, OutcomeOK, outcomes[domain.DataTypePrices])
	assert.Equal(t, OutcomeNoData, outcomes[domain.DataTypeFundamentals])
	assert.Equal(t, OutcomeRateLimited, outcomes[domain.DataTypeNews])
	assert.Equal(t, OutcomeSourceError, outcomes[domain.DataTypeSocial])

	// NO_DATA counts toward success, the failures do not.
	assert.InDelta(t, 0.6, report.SuccessRatio(), 1e-9)
}

func TestCollect_InvalidBarsAreValidationFailure(t *testing.T) {
	market := &fakeMarket{bars: map[string][]domain.PriceBar{
		"BAD": {{Symbol: "BAD", TradeDate: time.Now(), Source: "yahoo",
			Open: 0, High: 0, Low: 0, Close: 0, Volume: -1}},
	}}
	o, _, _ := newTestOrchestrator(t, market, &fakeSocial{})

	report := o.Collect(context.Background(), []string{"BAD"},
		[]domain.DataType{domain.DataTypePrices})

	require.Len(t, report.Tasks, 1)
	assert.Equal(t, OutcomeValidationFailed, report.Tasks[0].Outcome)
}

func TestCollect_CancelledContext(t *testing.T) {
	market := &fakeMarket{bars: map[string][]domain.PriceBar{"AAPL": validBars("AAPL")}}
	o, _, _ := newTestOrchestrator(t, market, &fakeSocial{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := o.Collect(ctx, []string{"AAPL", "GOOGL", "MSFT"}, nil)

	// Whatever tasks ran report CANCELLED; nothing reports OK.
	assert.Zero(t, report.Counts[OutcomeOK])
	for _, task := range report.Tasks {
		assert.Equal(t, OutcomeCancelled, task.Outcome)
	}
}

func TestEstimateDuration(t *testing.T) {
	o, _, _ := newTestOrchestrator(t,
		&fakeMarket{bars: map[string][]domain.PriceBar{}}, &fakeSocial{})

	// 100 symbols x 4 yahoo types at 60 req/min = 400 seconds.
	d := o.EstimateDuration(100, nil)
	assert.Equal(t, 400*time.Second, d)

	// Social only: 100 reddit requests at 60 req/min.
	d = o.EstimateDuration(100, []domain.DataType{domain.DataTypeSocial})
	assert.Equal(t, 100*time.Second, d)
}
