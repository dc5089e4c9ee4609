// Package wikipedia scrapes the S&P 500 constituent table. When the scrape
// fails, callers fall back to an ETF holdings endpoint and finally to the
// compiled-in constituent list.
package wikipedia

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
	constituentsURL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
	sourceName      = "wikipedia"
	userAgent       = "equityscope/1.0 (index constituent fetcher)"
)

// ErrParseFailed is returned when the page downloads but the constituent
// table cannot be located or yields implausibly few rows.
var ErrParseFailed = errors.New("constituent table parse failed")

// minPlausibleConstituents guards against a page redesign silently
// truncating the universe.
const minPlausibleConstituents = 400

// Constituent is one index member row.
type Constituent struct {
	Symbol   string
	Name     string
	Sector   string
	Industry string
}

// Client scrapes the constituents page.
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

// SelfTest downloads and parses the constituents page.
func (c *Client) SelfTest(ctx context.Context) domain.APIStatus {
	_, err := c.FetchConstituents(ctx)
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

// FetchConstituents downloads and parses the constituent table.
func (c *Client) FetchConstituents(ctx context.Context) ([]Constituent, error) {
	body, err := c.fetcher.Get(ctx, constituentsURL, map[string]string{"User-Agent": userAgent})
	if err != nil {
		return nil, err
	}
	return parseConstituents(body)
}

// parseConstituents extracts rows from the first wikitable whose header
// starts with "Symbol".
func parseConstituents(html []byte) ([]Constituent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	var constituents []Constituent
	doc.Find("table.wikitable").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		header := strings.TrimSpace(table.Find("th").First().Text())
		if !strings.EqualFold(header, "Symbol") {
			return true
		}

		table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 4 {
				return
			}
			symbol := strings.TrimSpace(cells.Eq(0).Text())
			if symbol == "" {
				return
			}
			constituents = append(constituents, Constituent{
				Symbol:   symbol,
				Name:     strings.TrimSpace(cells.Eq(1).Text()),
				Sector:   strings.TrimSpace(cells.Eq(2).Text()),
				Industry: strings.TrimSpace(cells.Eq(3).Text()),
			})
		})
		return false
	})

	if len(constituents) < minPlausibleConstituents {
		return nil, fmt.Errorf("%w: found only %d rows", ErrParseFailed, len(constituents))
	}
	return constituents, nil
}
