package universe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/events"
)

// RefreshThrottle is how long a successful index refresh suppresses
// unforced ones.
const RefreshThrottle = 7 * 24 * time.Hour

// probesPerSecond smooths symbol validation probes so a refresh with many
// additions does not burst against the market data source.
const probesPerSecond = 2

// ErrInvalidSymbol is returned when a custom universe references a symbol
// that fails normalization.
var ErrInvalidSymbol = errors.New("invalid symbol")

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9\-]{0,9}$`)

// SymbolProber validates that a symbol actually resolves at the market data
// source before it joins the universe.
type SymbolProber interface {
	Probe(ctx context.Context, symbol string) error
}

// Diff is the outcome of one index refresh.
type Diff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
	Source    string   `json:"source,omitempty"`
	Throttled bool     `json:"throttled,omitempty"`
}

// Manager owns universe membership: index refresh with source fallback, and
// custom universe CRUD.
type Manager struct {
	stocks  *StockRepository
	store   *FileStore
	sources []ConstituentSource
	prober  SymbolProber
	probes  *rate.Limiter
	bus     *events.Bus
	now     func() time.Time
	log     zerolog.Logger
}

func NewManager(
	stocks *StockRepository,
	store *FileStore,
	sources []ConstituentSource,
	prober SymbolProber,
	bus *events.Bus,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		stocks:  stocks,
		store:   store,
		sources: sources,
		prober:  prober,
		probes:  rate.NewLimiter(rate.Limit(probesPerSecond), 1),
		bus:     bus,
		now:     time.Now,
		log:     log.With().Str("module", "universe").Logger(),
	}
}

// NormalizeSymbol canonicalizes a raw symbol: trimmed, uppercased, class
// share dots replaced with dashes (BRK.B -> BRK-B).
func NormalizeSymbol(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ".", "-")
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return s, nil
}

// RefreshIndex synchronizes the S&P 500 universe from the constituent
// sources. Unforced refreshes within the throttle window are skipped. When
// every source fails the stored universe is left untouched and an empty
// diff is returned.
func (m *Manager) RefreshIndex(ctx context.Context, force bool) (*Diff, error) {
	current, err := m.store.Get(domain.SP500UniverseID)
	if err != nil && !errors.Is(err, ErrUniverseNotFound) {
		return nil, err
	}

	if !force && current != nil && m.now().Sub(current.UpdatedAt) < RefreshThrottle {
		m.log.Debug().Time("last_refresh", current.UpdatedAt).Msg("index refresh throttled")
		return &Diff{Unchanged: len(current.Symbols), Throttled: true}, nil
	}

	constituents, source := m.fetchConstituents(ctx, current == nil)
	if constituents == nil {
		m.log.Warn().Msg("every constituent source failed; universe left unchanged")
		diff := &Diff{}
		if current != nil {
			diff.Unchanged = len(current.Symbols)
		}
		return diff, nil
	}

	var currentSymbols []string
	if current != nil {
		currentSymbols = current.Symbols
	}
	diff, members := m.applyConstituents(ctx, currentSymbols, constituents)
	diff.Source = source

	if err := m.store.Put(domain.Universe{
		ID:      domain.SP500UniverseID,
		Name:    "S&P 500",
		Symbols: members,
	}); err != nil {
		return nil, err
	}

	m.bus.Emit(events.UniverseRefreshed, "universe", diff)
	m.log.Info().Str("source", source).Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).Int("unchanged", diff.Unchanged).
		Msg("index universe refreshed")
	return diff, nil
}

// fetchConstituents tries each source in order. The compiled list is used
// only to bootstrap an empty store.
func (m *Manager) fetchConstituents(ctx context.Context, bootstrap bool) ([]Constituent, string) {
	for _, source := range m.sources {
		constituents, err := source.Constituents(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("source", source.Name()).Msg("constituent source failed")
			continue
		}
		return constituents, source.Name()
	}
	if bootstrap {
		m.log.Warn().Msg("bootstrapping universe from the compiled constituent list")
		return compiledConstituents, "compiled"
	}
	return nil, ""
}

// applyConstituents normalizes, probes additions, and persists membership
// changes to the stocks table. Returns the diff and the final member list.
func (m *Manager) applyConstituents(ctx context.Context, current []string, constituents []Constituent) (*Diff, []string) {
	known := make(map[string]bool, len(current))
	for _, s := range current {
		known[s] = true
	}

	diff := &Diff{}
	seen := make(map[string]bool, len(constituents))
	var members []string

	for _, c := range constituents {
		symbol, err := NormalizeSymbol(c.Symbol)
		if err != nil {
			m.log.Warn().Str("raw", c.Symbol).Msg("skipping unnormalizable symbol")
			continue
		}
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		if !known[symbol] {
			if !m.probeSymbol(ctx, symbol) {
				m.log.Warn().Str("symbol", symbol).Msg("probe failed, symbol not added")
				continue
			}
			diff.Added = append(diff.Added, symbol)
		} else {
			diff.Unchanged++
		}

		if err := m.stocks.Upsert(domain.Stock{
			Symbol:   symbol,
			Name:     c.Name,
			Sector:   c.Sector,
			Industry: c.Industry,
		}); err != nil {
			m.log.Error().Err(err).Str("symbol", symbol).Msg("stock upsert failed")
			continue
		}
		members = append(members, symbol)
	}

	for _, symbol := range current {
		if seen[symbol] {
			continue
		}
		diff.Removed = append(diff.Removed, symbol)
		if err := m.stocks.Deactivate(symbol); err != nil {
			m.log.Error().Err(err).Str("symbol", symbol).Msg("stock deactivation failed")
		}
	}
	return diff, members
}

// probeSymbol validates one addition against the market data source,
// smoothed by the probe limiter. A nil prober accepts everything.
func (m *Manager) probeSymbol(ctx context.Context, symbol string) bool {
	if m.prober == nil {
		return true
	}
	if err := m.probes.Wait(ctx); err != nil {
		return false
	}
	return m.prober.Probe(ctx, symbol) == nil
}

// CreateCustom creates a custom universe from raw symbols. Every symbol
// must normalize and refer to a known stock.
func (m *Manager) CreateCustom(id, name string, rawSymbols []string) (*domain.Universe, error) {
	if id == domain.SP500UniverseID {
		return nil, fmt.Errorf("universe id %q is reserved", id)
	}
	if len(rawSymbols) == 0 {
		return nil, errors.New("a universe needs at least one symbol")
	}

	symbols := make([]string, 0, len(rawSymbols))
	seen := make(map[string]bool, len(rawSymbols))
	for _, raw := range rawSymbols {
		symbol, err := m.trackedSymbol(raw)
		if err != nil {
			return nil, err
		}
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}

	u := domain.Universe{ID: id, Name: name, Symbols: symbols}
	if err := m.store.Put(u); err != nil {
		return nil, err
	}
	m.log.Info().Str("universe", id).Int("symbols", len(symbols)).Msg("custom universe created")
	return &u, nil
}

// AddSymbols appends symbols to a custom universe. Symbols already present
// are ignored. The index universe is protected.
func (m *Manager) AddSymbols(id string, rawSymbols []string) (*domain.Universe, error) {
	if id == domain.SP500UniverseID {
		return nil, ErrProtectedUniverse
	}
	u, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(u.Symbols))
	for _, s := range u.Symbols {
		seen[s] = true
	}
	added := 0
	for _, raw := range rawSymbols {
		symbol, err := m.trackedSymbol(raw)
		if err != nil {
			return nil, err
		}
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		u.Symbols = append(u.Symbols, symbol)
		added++
	}

	if err := m.store.Put(*u); err != nil {
		return nil, err
	}
	m.log.Info().Str("universe", id).Int("added", added).Msg("symbols added to universe")
	return u, nil
}

// RemoveSymbols drops symbols from a custom universe. A universe cannot be
// emptied this way; delete it instead.
func (m *Manager) RemoveSymbols(id string, rawSymbols []string) (*domain.Universe, error) {
	if id == domain.SP500UniverseID {
		return nil, ErrProtectedUniverse
	}
	u, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]bool, len(rawSymbols))
	for _, raw := range rawSymbols {
		symbol, err := NormalizeSymbol(raw)
		if err != nil {
			return nil, err
		}
		drop[symbol] = true
	}

	kept := u.Symbols[:0]
	for _, s := range u.Symbols {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("a universe needs at least one symbol")
	}
	removed := len(u.Symbols) - len(kept)
	u.Symbols = kept

	if err := m.store.Put(*u); err != nil {
		return nil, err
	}
	m.log.Info().Str("universe", id).Int("removed", removed).Msg("symbols removed from universe")
	return u, nil
}

// trackedSymbol normalizes a raw symbol and checks it refers to a known
// stock.
func (m *Manager) trackedSymbol(raw string) (string, error) {
	symbol, err := NormalizeSymbol(raw)
	if err != nil {
		return "", err
	}
	stock, err := m.stocks.Get(symbol)
	if err != nil {
		return "", err
	}
	if stock == nil {
		return "", fmt.Errorf("%w: %s is not a tracked stock", ErrInvalidSymbol, symbol)
	}
	return symbol, nil
}

// DeleteCustom removes a custom universe. The index universe is protected.
func (m *Manager) DeleteCustom(id string) error {
	return m.store.Delete(id)
}

// Get returns one universe.
func (m *Manager) Get(id string) (*domain.Universe, error) {
	return m.store.Get(id)
}

// List returns every universe.
func (m *Manager) List() ([]domain.Universe, error) {
	return m.store.List()
}

// Members resolves a universe id to its symbols.
func (m *Manager) Members(id string) ([]string, error) {
	u, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	return u.Symbols, nil
}
