// Package main is the entry point for EquityScope, the stock analytics
// pipeline: it collects market, fundamental, news, and social data for the
// S&P 500 universe, pushes every component through quality gates, and scores
// approved data into sector-relative composites.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/equityscope/internal/clients/reddit"
	"github.com/aristath/equityscope/internal/clients/slickcharts"
	"github.com/aristath/equityscope/internal/clients/wikipedia"
	"github.com/aristath/equityscope/internal/clients/yahoo"
	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/events"
	"github.com/aristath/equityscope/internal/modules/collection"
	"github.com/aristath/equityscope/internal/modules/gating"
	"github.com/aristath/equityscope/internal/modules/marketdata"
	"github.com/aristath/equityscope/internal/modules/scoring"
	"github.com/aristath/equityscope/internal/modules/sentiment"
	"github.com/aristath/equityscope/internal/modules/universe"
	"github.com/aristath/equityscope/internal/modules/versioning"
	"github.com/aristath/equityscope/internal/scheduler"
	"github.com/aristath/equityscope/internal/server"
	"github.com/aristath/equityscope/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting EquityScope")

	db, err := database.New(database.Config{Path: cfg.DatabasePath, Name: "analytics"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	methodology := cfg.Methodology
	conn := db.Conn()
	bus := events.NewBus()

	// Repositories.
	stocks := universe.NewStockRepository(conn, log)
	prices := marketdata.NewPriceRepository(conn, log)
	fundamentals := marketdata.NewFundamentalsRepository(conn, log)
	news := marketdata.NewNewsRepository(conn, log)
	social := marketdata.NewSocialRepository(conn, log)
	sentimentRepo := marketdata.NewSentimentRepository(conn, log)
	metrics := scoring.NewMetricsRepository(conn, log)

	// Versioned reads and quality gating.
	versions := versioning.NewManager(
		versioning.NewClassifier(methodology.Staleness),
		fundamentals, prices, news, sentimentRepo, log)

	gates := gating.NewService(conn,
		gating.NewGateRepository(conn, log),
		gating.NewVersionRepository(conn, log),
		gating.NewRuleRepository(conn, log),
		versions, bus, log)
	if err := gates.SeedRules(methodology.DomainRules()); err != nil {
		log.Fatal().Err(err).Msg("failed to seed gate rules")
	}

	// Scoring engine. Admission goes through the gates; sectors come from
	// the stocks table.
	scorer, err := scoring.NewEngine(methodology, versions, metrics, gates, stocks, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scoring engine")
	}

	// External source clients, all behind the shared protection stack.
	yahooClient := yahoo.NewClient(methodology.RateLimits["yahoo"], log)
	redditClient := reddit.NewClient(cfg.Credentials.Reddit, methodology.RateLimits["reddit"], log)
	wikipediaClient := wikipedia.NewClient(methodology.RateLimits["wikipedia"], log)
	slickchartsClient := slickcharts.NewClient(methodology.RateLimits["wikipedia"], log)

	// Universe management: Wikipedia first, holdings scrape as fallback,
	// Yahoo probes validate additions.
	universeManager := universe.NewManager(
		stocks,
		universe.NewFileStore(cfg.DataDir, log),
		[]universe.ConstituentSource{
			universe.WikipediaSource{Client: wikipediaClient},
			universe.SlickchartsSource{Client: slickchartsClient},
		},
		yahooClient,
		bus, log)

	// Collection orchestrator.
	collector := collection.NewOrchestrator(
		yahooClient, redditClient,
		collection.Sinks{
			Stocks:       stocks,
			Prices:       prices,
			Fundamentals: fundamentals,
			News:         news,
			Social:       social,
			Sentiment:    sentimentRepo,
		},
		sentiment.NewLexiconClassifier(),
		bus, cfg.CollectionWorkers, methodology.RateLimits, log)

	// Source self-tests run in the background; startup never blocks on
	// external connectivity.
	statuses := config.NewStatusRegistry("yahoo", "reddit", "wikipedia")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		statuses.RunSelfTests(ctx, yahooClient, redditClient, wikipediaClient)
	}()

	// Periodic jobs.
	sched := scheduler.New(log)
	for _, reg := range []struct {
		spec string
		job  scheduler.Job
	}{
		{scheduler.UniverseRefreshSpec, scheduler.NewUniverseRefreshJob(universeManager, log)},
		{scheduler.GateExpirySpec, scheduler.NewGateExpiryJob(gates, log)},
		{scheduler.WALCheckpointSpec, scheduler.NewWALCheckpointJob(db, log)},
	} {
		if err := sched.Register(reg.spec, reg.job); err != nil {
			log.Fatal().Err(err).Str("job", reg.job.Name()).Msg("failed to register job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		DB:        db,
		Universe:  universeManager,
		Collector: collector,
		Gates:     gates,
		Scorer:    scorer,
		Metrics:   metrics,
		Bus:       bus,
		Statuses:  statuses,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	sched.Stop()

	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("final WAL checkpoint failed")
	}
	log.Info().Msg("EquityScope stopped")
}
