package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/clients/fetch"
	"github.com/aristath/equityscope/internal/clients/yahoo"
	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/events"
	"github.com/aristath/equityscope/internal/modules/sentiment"
)

// priceHistoryDays is how far back a price collection reaches.
const priceHistoryDays = 365

// sentimentWindowDays bounds the article/post window rolled into daily
// aggregates after a news or social collection.
const sentimentWindowDays = 30

// MarketSource fetches profile, price, fundamentals, and news data.
type MarketSource interface {
	FetchProfile(ctx context.Context, symbol string) (*yahoo.Profile, error)
	DailyBars(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error)
	FetchFundamentals(ctx context.Context, symbol string) (*domain.FundamentalRecord, error)
	FetchNews(ctx context.Context, symbol string) ([]domain.NewsArticle, int, error)
}

// SocialSource fetches social posts.
type SocialSource interface {
	FetchPosts(ctx context.Context, symbol string) ([]domain.SocialPost, error)
}

// Sinks are the repositories a collection run writes through.
type Sinks struct {
	Stocks interface {
		Upsert(s domain.Stock) error
	}
	Prices interface {
		InsertBatch(bars []domain.PriceBar) error
	}
	Fundamentals interface {
		Upsert(rec domain.FundamentalRecord) error
	}
	News interface {
		InsertBatch(articles []domain.NewsArticle) (int64, error)
		Recent(symbol string, since time.Time) ([]domain.NewsArticle, error)
	}
	Social interface {
		InsertBatch(posts []domain.SocialPost) (int64, error)
		Recent(symbol string, since time.Time) ([]domain.SocialPost, error)
	}
	Sentiment interface {
		Upsert(s domain.DailySentiment) error
	}
}

// Orchestrator runs collection passes over symbol sets.
type Orchestrator struct {
	market     MarketSource
	social     SocialSource
	sinks      Sinks
	classifier sentiment.Classifier
	bus        *events.Bus
	workers    int
	rates      map[string]config.RateLimit
	log        zerolog.Logger
}

func NewOrchestrator(
	market MarketSource,
	social SocialSource,
	sinks Sinks,
	classifier sentiment.Classifier,
	bus *events.Bus,
	workers int,
	rates map[string]config.RateLimit,
	log zerolog.Logger,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		market:     market,
		social:     social,
		sinks:      sinks,
		classifier: classifier,
		bus:        bus,
		workers:    workers,
		rates:      rates,
		log:        log.With().Str("module", "collection").Logger(),
	}
}

// Collect runs one pass over the symbols for the requested data types.
// Symbols run concurrently on the worker pool; within a symbol the types
// run in dependency order. An empty types slice means everything.
func (o *Orchestrator) Collect(ctx context.Context, symbols []string, types []domain.DataType) *Report {
	if len(types) == 0 {
		types = domain.CollectionOrder()
	}
	wanted := make(map[domain.DataType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	start := time.Now().UTC()
	report := newReport(len(symbols), start)

	o.bus.Emit(events.CollectionStarted, "collection", map[string]any{
		"symbols": len(symbols),
		"types":   types,
	})
	o.log.Info().Int("symbols", len(symbols)).Int("workers", o.workers).
		Msg("collection started")

	jobs := make(chan string)
	results := make(chan []TaskResult)

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				results <- o.collectSymbol(ctx, symbol, wanted)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, symbol := range symbols {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var done int
	for taskResults := range results {
		for _, r := range taskResults {
			report.add(r)
		}
		done++
		if len(taskResults) > 0 {
			o.bus.Emit(events.CollectionProgress, "collection", events.ProgressData{
				Current:    done,
				Total:      len(symbols),
				LastSymbol: taskResults[0].Symbol,
			})
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()

	o.bus.Emit(events.CollectionFinished, "collection", report)
	o.log.Info().Int("tasks", len(report.Tasks)).
		Float64("success_ratio", report.SuccessRatio()).
		Str("duration", report.Duration).
		Msg("collection finished")
	return report
}

// collectSymbol runs the wanted types for one symbol in dependency order:
// the profile identifies the company, prices and fundamentals build on it,
// news and social feed the sentiment aggregation at the end.
func (o *Orchestrator) collectSymbol(ctx context.Context, symbol string, wanted map[domain.DataType]bool) []TaskResult {
	var results []TaskResult
	var textCollected bool

	for _, dataType := range domain.CollectionOrder() {
		if !wanted[dataType] {
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, TaskResult{
				Symbol: symbol, Type: dataType, Outcome: OutcomeCancelled,
			})
			continue
		}

		result := o.runTask(ctx, symbol, dataType)
		results = append(results, result)
		if result.Outcome == OutcomeOK &&
			(dataType == domain.DataTypeNews || dataType == domain.DataTypeSocial) {
			textCollected = true
		}
	}

	if textCollected {
		if err := o.aggregateSentiment(symbol); err != nil {
			o.log.Error().Err(err).Str("symbol", symbol).Msg("sentiment aggregation failed")
		}
	}
	return results
}

func (o *Orchestrator) runTask(ctx context.Context, symbol string, dataType domain.DataType) TaskResult {
	var rows int
	var err error

	switch dataType {
	case domain.DataTypeProfile:
		rows, err = o.collectProfile(ctx, symbol)
	case domain.DataTypePrices:
		rows, err = o.collectPrices(ctx, symbol)
	case domain.DataTypeFundamentals:
		rows, err = o.collectFundamentals(ctx, symbol)
	case domain.DataTypeNews:
		rows, err = o.collectNews(ctx, symbol)
	case domain.DataTypeSocial:
		rows, err = o.collectSocial(ctx, symbol)
	default:
		err = fmt.Errorf("unknown data type %q", dataType)
	}

	result := TaskResult{Symbol: symbol, Type: dataType, Outcome: classify(err), Rows: rows}
	if err != nil {
		result.Error = err.Error()
		o.log.Warn().Err(err).Str("symbol", symbol).Str("type", string(dataType)).
			Str("outcome", string(result.Outcome)).Msg("collection task failed")
	}
	return result
}

// classify maps an error to the outcome taxonomy.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.Is(err, fetch.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, yahoo.ErrNoData) || errors.Is(err, fetch.ErrNotFound):
		return OutcomeNoData
	case errors.Is(err, errValidation):
		return OutcomeValidationFailed
	default:
		return OutcomeSourceError
	}
}

var errValidation = errors.New("validation failed")

func (o *Orchestrator) collectProfile(ctx context.Context, symbol string) (int, error) {
	profile, err := o.market.FetchProfile(ctx, symbol)
	if err != nil {
		return 0, err
	}
	stock := domain.Stock{
		Symbol:    symbol,
		Name:      profile.Name,
		Sector:    profile.Sector,
		Industry:  profile.Industry,
		Exchange:  profile.Exchange,
		MarketCap: profile.MarketCap,
	}
	if err := o.sinks.Stocks.Upsert(stock); err != nil {
		return 0, err
	}
	return 1, nil
}

func (o *Orchestrator) collectPrices(ctx context.Context, symbol string) (int, error) {
	bars, err := o.market.DailyBars(ctx, symbol, priceHistoryDays)
	if err != nil {
		return 0, err
	}

	// Bars that fail OHLCV validation are dropped rather than poisoning the
	// batch; a fully invalid payload is a validation failure.
	valid := bars[:0]
	for _, bar := range bars {
		if bar.Validate() == nil {
			valid = append(valid, bar)
		}
	}
	if len(valid) == 0 {
		return 0, fmt.Errorf("%w: no valid bars for %s", errValidation, symbol)
	}
	if err := o.sinks.Prices.InsertBatch(valid); err != nil {
		return 0, err
	}
	return len(valid), nil
}

func (o *Orchestrator) collectFundamentals(ctx context.Context, symbol string) (int, error) {
	rec, err := o.market.FetchFundamentals(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if err := o.sinks.Fundamentals.Upsert(*rec); err != nil {
		return 0, err
	}
	return 1, nil
}

func (o *Orchestrator) collectNews(ctx context.Context, symbol string) (int, error) {
	articles, dropped, err := o.market.FetchNews(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if len(articles) == 0 {
		if dropped > 0 {
			return 0, fmt.Errorf("%w: every article lacked a publish date for %s", errValidation, symbol)
		}
		return 0, fmt.Errorf("%w: news for %s", yahoo.ErrNoData, symbol)
	}

	for i := range articles {
		articles[i].Sentiment = o.classifier.Classify(articles[i].Title + " " + articles[i].Summary)
	}
	written, err := o.sinks.News.InsertBatch(articles)
	if err != nil {
		return 0, err
	}
	return int(written), nil
}

func (o *Orchestrator) collectSocial(ctx context.Context, symbol string) (int, error) {
	posts, err := o.social.FetchPosts(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, fmt.Errorf("%w: social posts for %s", yahoo.ErrNoData, symbol)
	}

	for i := range posts {
		posts[i].Sentiment = o.classifier.Classify(posts[i].Title + " " + posts[i].Text)
	}
	written, err := o.sinks.Social.InsertBatch(posts)
	if err != nil {
		return 0, err
	}
	return int(written), nil
}

// aggregateSentiment recomputes the daily sentiment rows from the stored
// articles and posts inside the window.
func (o *Orchestrator) aggregateSentiment(symbol string) error {
	since := time.Now().UTC().AddDate(0, 0, -sentimentWindowDays)

	articles, err := o.sinks.News.Recent(symbol, since)
	if err != nil {
		return err
	}
	posts, err := o.sinks.Social.Recent(symbol, since)
	if err != nil {
		return err
	}

	for _, agg := range sentiment.Aggregate(symbol, articles, posts) {
		if err := o.sinks.Sentiment.Upsert(agg); err != nil {
			return err
		}
	}
	return nil
}

// EstimateDuration predicts how long collecting the symbols will take from
// the per-source rate budgets. It assumes one request per (symbol, type)
// against the binding source budget.
func (o *Orchestrator) EstimateDuration(symbols int, types []domain.DataType) time.Duration {
	if len(types) == 0 {
		types = domain.CollectionOrder()
	}

	requests := map[string]int{}
	for _, t := range types {
		switch t {
		case domain.DataTypeSocial:
			requests["reddit"] += symbols
		default:
			requests["yahoo"] += symbols
		}
	}

	var worst time.Duration
	for source, count := range requests {
		limit, ok := o.rates[source]
		if !ok || limit.MaxRequests == 0 {
			continue
		}
		perRequest := time.Duration(limit.WindowSeconds) * time.Second / time.Duration(limit.MaxRequests)
		if d := time.Duration(count) * perRequest; d > worst {
			worst = d
		}
	}
	return worst
}
