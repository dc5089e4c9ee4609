// Package slickcharts scrapes the S&P 500 holdings table from
// slickcharts.com, the fallback constituent source when the Wikipedia
// scrape fails. Rows carry symbol and name only; sector classification is
// filled in later from company profiles.
package slickcharts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/clients/fetch"
	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
)

const (
	holdingsURL = "https://www.slickcharts.com/sp500"
	sourceName  = "slickcharts"
	userAgent   = "equityscope/1.0 (index constituent fetcher)"
)

// ErrParseFailed is returned when the holdings table cannot be parsed.
var ErrParseFailed = errors.New("holdings table parse failed")

const minPlausibleHoldings = 400

// Holding is one index member row.
type Holding struct {
	Symbol string
	Name   string
}

// Client scrapes the holdings page.
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

// Name implements config.SelfTester.
func (c *Client) Name() string { return sourceName }

// SelfTest downloads and parses the holdings page.
func (c *Client) SelfTest(ctx context.Context) domain.APIStatus {
	_, err := c.FetchHoldings(ctx)
	switch {
	case err == nil:
		return domain.APIHealthy
	case errors.Is(err, fetch.ErrRateLimited):
		return domain.APIRateLimited
	case errors.Is(err, ErrParseFailed):
		return domain.APILimited
	default:
		return domain.APIFailed
	}
}

// FetchHoldings downloads and parses the holdings table.
func (c *Client) FetchHoldings(ctx context.Context) ([]Holding, error) {
	body, err := c.fetcher.Get(ctx, holdingsURL, map[string]string{"User-Agent": userAgent})
	if err != nil {
		return nil, err
	}
	return parseHoldings(body)
}

func parseHoldings(html []byte) ([]Holding, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	var holdings []Holding
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		// Rank, company, symbol, weight, ...
		if cells.Length() < 3 {
			return
		}
		symbol := strings.TrimSpace(cells.Eq(2).Text())
		if symbol == "" {
			return
		}
		holdings = append(holdings, Holding{
			Symbol: symbol,
			Name:   strings.TrimSpace(cells.Eq(1).Text()),
		})
	})

	if len(holdings) < minPlausibleHoldings {
		return nil, fmt.Errorf("%w: found only %d rows", ErrParseFailed, len(holdings))
	}
	return holdings, nil
}
