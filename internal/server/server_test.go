package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/events"
	"github.com/aristath/equityscope/internal/modules/gating"
	"github.com/aristath/equityscope/internal/modules/marketdata"
	"github.com/aristath/equityscope/internal/modules/scoring"
	"github.com/aristath/equityscope/internal/modules/universe"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

var testDBCounter atomic.Int64

type fixture struct {
	server *Server
	stocks *universe.StockRepository
	funds  *marketdata.FundamentalsRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	path := fmt.Sprintf("file:server%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := database.New(database.Config{Path: path, Name: "analytics"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.New(nil).Level(zerolog.Disabled)
	methodology := config.DefaultMethodology()
	cfg := &config.Config{
		DataDir:     t.TempDir(),
		Port:        8010,
		DevMode:     true,
		Methodology: methodology,
		Credentials: config.Credentials{
			Reddit: config.SourceCredentials{APIKey: "super-secret-id", APISecret: "super-secret"},
		},
	}

	conn := db.Conn()
	stocks := universe.NewStockRepository(conn, log)
	funds := marketdata.NewFundamentalsRepository(conn, log)
	prices := marketdata.NewPriceRepository(conn, log)
	news := marketdata.NewNewsRepository(conn, log)
	sentimentRepo := marketdata.NewSentimentRepository(conn, log)

	versions := versioning.NewManager(
		versioning.NewClassifier(methodology.Staleness),
		funds, prices, news, sentimentRepo, log)

	bus := events.NewBus()
	gates := gating.NewService(conn,
		gating.NewGateRepository(conn, log),
		gating.NewVersionRepository(conn, log),
		gating.NewRuleRepository(conn, log),
		versions, bus, log)
	require.NoError(t, gates.SeedRules(methodology.DomainRules()))

	metrics := scoring.NewMetricsRepository(conn, log)
	scorer, err := scoring.NewEngine(methodology, versions, metrics, gates, stocks, log)
	require.NoError(t, err)

	manager := universe.NewManager(stocks,
		universe.NewFileStore(cfg.DataDir, log), nil, nil, bus, log)

	s := New(Config{
		Log:      log,
		Config:   cfg,
		DB:       db,
		Universe: manager,
		Gates:    gates,
		Scorer:   scorer,
		Metrics:  metrics,
		Bus:      bus,
		Statuses: config.NewStatusRegistry("yahoo", "reddit"),
	})
	return &fixture{server: s, stocks: stocks, funds: funds}
}

func (f *fixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestUniverseEndpoints(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stocks.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple"}))
	require.NoError(t, f.stocks.Upsert(domain.Stock{Symbol: "MSFT", Name: "Microsoft"}))

	rec := f.request(t, http.MethodPost, "/api/universes/", createUniverseRequest{
		ID: "watchlist", Name: "Watchlist", Symbols: []string{"aapl", "MSFT"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var u domain.Universe
	decode(t, f.request(t, http.MethodGet, "/api/universes/watchlist", nil), &u)
	assert.Equal(t, []string{"AAPL", "MSFT"}, u.Symbols)

	var members struct {
		Symbols []string `json:"symbols"`
	}
	decode(t, f.request(t, http.MethodGet, "/api/universes/watchlist/members", nil), &members)
	assert.Len(t, members.Symbols, 2)

	// Unknown symbols are rejected at creation time.
	rec = f.request(t, http.MethodPost, "/api/universes/", createUniverseRequest{
		ID: "bad", Name: "Bad", Symbols: []string{"NOPE"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Membership edits.
	rec = f.request(t, http.MethodPost, "/api/universes/watchlist/symbols",
		universeSymbolsRequest{Symbols: []string{"msft"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.request(t, http.MethodDelete, "/api/universes/watchlist/symbols",
		universeSymbolsRequest{Symbols: []string{"AAPL"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &u)
	assert.Equal(t, []string{"MSFT"}, u.Symbols)

	rec = f.request(t, http.MethodPost, "/api/universes/sp500/symbols",
		universeSymbolsRequest{Symbols: []string{"AAPL"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodDelete, "/api/universes/watchlist", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.request(t, http.MethodGet, "/api/universes/watchlist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateAndAdmissionEndpoints(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stocks.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple", Sector: "Technology"}))
	quality := 0.9
	pe := 18.0
	require.NoError(t, f.funds.Upsert(domain.FundamentalRecord{
		Symbol: "AAPL", PeriodType: "ttm", Source: "yahoo",
		PERatio: &pe, Quality: quality, CreatedAt: time.Now().UTC(),
	}))

	// Fresh, good fundamentals evaluate clean.
	rec := f.request(t, http.MethodGet, "/api/gates/AAPL/fundamentals/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/gates/AAPL/fundamentals/approve",
		approvalRequest{Approver: "analyst"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var gate domain.QualityGate
	decode(t, rec, &gate)
	assert.Equal(t, domain.GateApproved, gate.Status)

	rec = f.request(t, http.MethodGet, "/api/gates/AAPL/fundamentals/active", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/gates/AAPL/fundamentals/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gates []domain.QualityGate
	decode(t, rec, &gates)
	assert.Len(t, gates, 1)

	// Components without approvals on record keep analysis blocked.
	var admission struct {
		Allowed bool     `json:"allowed"`
		Reasons []string `json:"reasons"`
	}
	decode(t, f.request(t, http.MethodGet, "/api/admission/AAPL", nil), &admission)
	assert.False(t, admission.Allowed)
	assert.NotEmpty(t, admission.Reasons)

	// Unknown component is a client error.
	rec = f.request(t, http.MethodGet, "/api/gates/AAPL/bogus/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/gates/AAPL/fundamentals/approve",
		approvalRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "approver is mandatory")
}

func TestScoreEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/scores/AAPL", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/scores/top", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Scoring a blocked symbol counts it as blocked, not failed.
	rec = f.request(t, http.MethodPost, "/api/scores/run", scoreRunRequest{Symbols: []string{"AAPL"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var batch scoring.BatchResult
	decode(t, rec, &batch)
	assert.Equal(t, 1, batch.Blocked)
	assert.Zero(t, batch.Scored)
}

func TestSystemEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/system/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "database_healthy")

	rec = f.request(t, http.MethodGet, "/api/system/sources", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNTESTED")

	rec = f.request(t, http.MethodGet, "/api/system/rules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quality_score")

	rec = f.request(t, http.MethodGet, "/api/system/database/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodologyRedactsCredentials(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/system/methodology", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"configured":true`)
	assert.False(t, strings.Contains(body, "super-secret"), "secrets must never serialize")
}

func TestCollectionEstimateValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/collection/estimate?symbols=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/collection/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no run recorded yet")
}
