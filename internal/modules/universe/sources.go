package universe

import (
	"context"

	"github.com/aristath/equityscope/internal/clients/slickcharts"
	"github.com/aristath/equityscope/internal/clients/wikipedia"
)

// Constituent is one index member as reported by a source. Sector and
// Industry may be empty for sources that only carry symbol and name.
type Constituent struct {
	Symbol   string
	Name     string
	Sector   string
	Industry string
}

// ConstituentSource is one way of obtaining the index membership. Sources
// are tried in order until one succeeds.
type ConstituentSource interface {
	Name() string
	Constituents(ctx context.Context) ([]Constituent, error)
}

// WikipediaSource adapts the Wikipedia scraper.
type WikipediaSource struct {
	Client *wikipedia.Client
}

func (s WikipediaSource) Name() string { return "wikipedia" }

func (s WikipediaSource) Constituents(ctx context.Context) ([]Constituent, error) {
	rows, err := s.Client.FetchConstituents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Constituent, 0, len(rows))
	for _, r := range rows {
		out = append(out, Constituent{
			Symbol: r.Symbol, Name: r.Name, Sector: r.Sector, Industry: r.Industry,
		})
	}
	return out, nil
}

// SlickchartsSource adapts the holdings scraper used as fallback.
type SlickchartsSource struct {
	Client *slickcharts.Client
}

func (s SlickchartsSource) Name() string { return "slickcharts" }

func (s SlickchartsSource) Constituents(ctx context.Context) ([]Constituent, error) {
	rows, err := s.Client.FetchHoldings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Constituent, 0, len(rows))
	for _, r := range rows {
		out = append(out, Constituent{Symbol: r.Symbol, Name: r.Name})
	}
	return out, nil
}
