package universe

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

	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/events"
)

var testDBCounter atomic.Int64

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := fmt.Sprintf("file:universe%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := database.New(database.Config{Path: path, Name: "analytics"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aapl", "AAPL", false},
		{" MSFT ", "MSFT", false},
		{"BRK.B", "BRK-B", false},
		{"brk.b", "BRK-B", false},
		{"", "", true},
		{"123", "", true},
		{"WAY-TOO-LONG-SYMBOL", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSymbol, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStockRepository_UpsertPreservesAndReactivates(t *testing.T) {
	repo := NewStockRepository(setupTestDB(t), testLogger())

	require.NoError(t, repo.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology"}))
	require.NoError(t, repo.Deactivate("AAPL"))

	s, err := repo.Get("AAPL")
	require.NoError(t, err)
	assert.False(t, s.Active)

	// Re-upsert with an empty sector: reactivates, keeps the known sector.
	require.NoError(t, repo.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple Inc."}))
	s, err = repo.Get("AAPL")
	require.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, "Technology", s.Sector)

	sector, err := repo.Sector("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Technology", sector)
}

func TestFileStore_CRUDAndProtection(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLogger())

	require.NoError(t, store.Put(domain.Universe{ID: "sp500", Name: "S&P 500", Symbols: []string{"AAPL"}}))
	require.NoError(t, store.Put(domain.Universe{ID: "tech", Name: "Tech picks", Symbols: []string{"AAPL", "MSFT"}}))

	u, err := store.Get("tech")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, u.Symbols)
	assert.False(t, u.CreatedAt.IsZero())

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, store.Delete("sp500"), ErrProtectedUniverse)
	require.NoError(t, store.Delete("tech"))
	_, err = store.Get("tech")
	assert.ErrorIs(t, err, ErrUniverseNotFound)
}

func TestFileStore_PutPreservesCreatedAt(t *testing.T) {
	store := NewFileStore(t.TempDir(), testLogger())

	require.NoError(t, store.Put(domain.Universe{ID: "x", Name: "X", Symbols: []string{"AAPL"}}))
	first, err := store.Get("x")
	require.NoError(t, err)

	require.NoError(t, store.Put(domain.Universe{ID: "x", Name: "X2", Symbols: []string{"MSFT"}}))
	second, err := store.Get("x")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "X2", second.Name)
}

// fakeSource serves a canned constituent list or an error.
type fakeSource struct {
	name string
	rows []Constituent
	err  error
}

func (f fakeSource) Name() string { return f.name }
func (f fakeSource) Constituents(context.Context) ([]Constituent, error) {
	return f.rows, f.err
}

// acceptAllProber accepts every symbol and records probes.
type acceptAllProber struct{ probed []string }

func (p *acceptAllProber) Probe(_ context.Context, symbol string) error {
	p.probed = append(p.probed, symbol)
	return nil
}

type rejectProber struct{ reject map[string]bool }

func (p rejectProber) Probe(_ context.Context, symbol string) error {
	if p.reject[symbol] {
		return errors.New("unknown symbol")
	}
	return nil
}

func newTestManager(t *testing.T, sources []ConstituentSource, prober SymbolProber) *Manager {
	t.Helper()
	return NewManager(
		NewStockRepository(setupTestDB(t), testLogger()),
		NewFileStore(t.TempDir(), testLogger()),
		sources,
		prober,
		events.NewBus(),
		testLogger(),
	)
}

func TestRefreshIndex_InitialAndDiff(t *testing.T) {
	primary := &fakeSource{name: "wikipedia", rows: []Constituent{
		{Symbol: "AAPL", Name: "Apple", Sector: "Technology"},
		{Symbol: "BRK.B", Name: "Berkshire", Sector: "Financial Services"},
	}}
	prober := &acceptAllProber{}
	m := newTestManager(t, []ConstituentSource{primary}, prober)

	diff, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "BRK-B"}, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Equal(t, "wikipedia", diff.Source)
	assert.ElementsMatch(t, []string{"AAPL", "BRK-B"}, prober.probed, "only additions are probed")

	// Second refresh: BRK.B leaves, MSFT joins.
	primary.rows = []Constituent{
		{Symbol: "AAPL", Name: "Apple", Sector: "Technology"},
		{Symbol: "MSFT", Name: "Microsoft", Sector: "Technology"},
	}
	diff, err = m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, diff.Added)
	assert.Equal(t, []string{"BRK-B"}, diff.Removed)
	assert.Equal(t, 1, diff.Unchanged)

	// Departed symbols are deactivated, never deleted.
	s, err := m.stocks.Get("BRK-B")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.False(t, s.Active)
}

func TestRefreshIndex_ThrottledWithinWindow(t *testing.T) {
	primary := &fakeSource{name: "wikipedia", rows: []Constituent{{Symbol: "AAPL", Name: "Apple"}}}
	m := newTestManager(t, []ConstituentSource{primary}, nil)

	_, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)

	diff, err := m.RefreshIndex(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, diff.Throttled)
	assert.Empty(t, diff.Added)

	// Force bypasses the throttle.
	diff, err = m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, diff.Throttled)
}

func TestRefreshIndex_FallbackSource(t *testing.T) {
	primary := fakeSource{name: "wikipedia", err: errors.New("parse failed")}
	fallback := fakeSource{name: "slickcharts", rows: []Constituent{{Symbol: "AAPL", Name: "Apple"}}}
	m := newTestManager(t, []ConstituentSource{primary, fallback}, nil)

	diff, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "slickcharts", diff.Source)
	assert.Equal(t, []string{"AAPL"}, diff.Added)
}

func TestRefreshIndex_AllSourcesFailLeavesUniverseUntouched(t *testing.T) {
	primary := &fakeSource{name: "wikipedia", rows: []Constituent{{Symbol: "AAPL", Name: "Apple"}}}
	m := newTestManager(t, []ConstituentSource{primary}, nil)

	_, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)

	primary.rows, primary.err = nil, errors.New("down")
	diff, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Equal(t, 1, diff.Unchanged)

	u, err := m.Get(domain.SP500UniverseID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, u.Symbols)
}

func TestRefreshIndex_BootstrapsFromCompiledList(t *testing.T) {
	failing := fakeSource{name: "wikipedia", err: errors.New("down")}
	m := newTestManager(t, []ConstituentSource{failing}, nil)

	diff, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "compiled", diff.Source)
	assert.NotEmpty(t, diff.Added)
}

func TestRefreshIndex_FailedProbeDropsSymbol(t *testing.T) {
	primary := fakeSource{name: "wikipedia", rows: []Constituent{
		{Symbol: "AAPL", Name: "Apple"},
		{Symbol: "BOGUS", Name: "Not Real"},
	}}
	m := newTestManager(t, []ConstituentSource{primary}, rejectProber{reject: map[string]bool{"BOGUS": true}})

	diff, err := m.RefreshIndex(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, diff.Added)

	u, err := m.Get(domain.SP500UniverseID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, u.Symbols)
}

func TestCustomUniverses(t *testing.T) {
	m := newTestManager(t, nil, nil)
	require.NoError(t, m.stocks.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple"}))
	require.NoError(t, m.stocks.Upsert(domain.Stock{Symbol: "MSFT", Name: "Microsoft"}))

	u, err := m.CreateCustom("watchlist", "My watchlist", []string{"aapl", "MSFT", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, u.Symbols, "normalized and deduplicated")

	_, err = m.CreateCustom("bad", "Bad", []string{"NOPE"})
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = m.CreateCustom("sp500", "Nope", []string{"AAPL"})
	assert.Error(t, err, "the index universe id is reserved")

	members, err := m.Members("watchlist")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, m.DeleteCustom("watchlist"))
	assert.ErrorIs(t, m.DeleteCustom("sp500"), ErrProtectedUniverse)
}

func TestAddRemoveSymbols(t *testing.T) {
	m := newTestManager(t, nil, nil)
	require.NoError(t, m.stocks.Upsert(domain.Stock{Symbol: "AAPL", Name: "Apple"}))
	require.NoError(t, m.stocks.Upsert(domain.Stock{Symbol: "MSFT", Name: "Microsoft"}))
	require.NoError(t, m.stocks.Upsert(domain.Stock{Symbol: "GOOG", Name: "Alphabet"}))

	_, err := m.CreateCustom("watchlist", "My watchlist", []string{"AAPL"})
	require.NoError(t, err)

	u, err := m.AddSymbols("watchlist", []string{"msft", "GOOG", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, u.Symbols, "normalized, duplicates ignored")

	_, err = m.AddSymbols("watchlist", []string{"NOPE"})
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	u, err = m.RemoveSymbols("watchlist", []string{"goog", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, u.Symbols)

	_, err = m.RemoveSymbols("watchlist", []string{"AAPL"})
	assert.Error(t, err, "cannot empty a universe")

	_, err = m.AddSymbols("sp500", []string{"AAPL"})
	assert.ErrorIs(t, err, ErrProtectedUniverse)
	_, err = m.RemoveSymbols("sp500", []string{"AAPL"})
	assert.ErrorIs(t, err, ErrProtectedUniverse)

	_, err = m.AddSymbols("missing", []string{"AAPL"})
	assert.ErrorIs(t, err, ErrUniverseNotFound)
}

func TestRefreshThrottleWindow(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, RefreshThrottle)
}
