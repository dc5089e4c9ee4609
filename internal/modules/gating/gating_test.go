package gating

import (
	"database/sql"
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
	"github.com/aristath/equityscope/internal/modules/versioning"
)

var testDBCounter atomic.Int64

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := fmt.Sprintf("file:gating%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := database.New(database.Config{Path: path, Name: "analytics"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// fakeSnapshots serves canned component snapshots keyed by symbol/component.
type fakeSnapshots struct {
	snaps map[string]*versioning.ComponentSnapshot
}

func (f *fakeSnapshots) Snapshot(symbol string, component domain.Component) (*versioning.ComponentSnapshot, error) {
	key := symbol + "/" + string(component)
	if snap, ok := f.snaps[key]; ok {
		return snap, nil
	}
	return &versioning.ComponentSnapshot{
		Symbol: symbol, Component: component,
		HasData: false, Freshness: domain.FreshnessMissing,
	}, nil
}

func (f *fakeSnapshots) set(symbol string, component domain.Component, snap *versioning.ComponentSnapshot) {
	snap.Symbol = symbol
	snap.Component = component
	f.snaps[symbol+"/"+string(component)] = snap
}

func goodSnapshot() *versioning.ComponentSnapshot {
	return &versioning.ComponentSnapshot{
		HasData: true, AgeDays: 0.5, Quality: 0.9, RecordCount: 250,
		Freshness: domain.FreshnessFresh,
	}
}

func testRules() []domain.QualityRule {
	return []domain.QualityRule{
		{Component: domain.ComponentFundamentals, MetricName: "quality_score", Threshold: 0.5, Operator: ">=", BlocksAnalysis: true, Description: "fundamentals quality below 0.5"},
		{Component: domain.ComponentPriceData, MetricName: "age_days", Threshold: 7, Operator: "<=", BlocksAnalysis: true, Description: "price data older than 7 days"},
		{Component: domain.ComponentPriceData, MetricName: "record_count", Threshold: 20, Operator: ">=", BlocksAnalysis: false, Description: "fewer than 20 price bars"},
	}
}

func newTestService(t *testing.T) (*Service, *fakeSnapshots) {
	t.Helper()
	db := setupTestDB(t)
	log := testLogger()
	snaps := &fakeSnapshots{snaps: make(map[string]*versioning.ComponentSnapshot)}
	svc := NewService(
		db,
		NewGateRepository(db, log),
		NewVersionRepository(db, log),
		NewRuleRepository(db, log),
		snaps,
		events.NewBus(),
		log,
	)
	require.NoError(t, svc.SeedRules(testRules()))
	return svc, snaps
}

func TestEvaluate_PassesWithHealthyData(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())

	eval, err := svc.Evaluate("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.False(t, eval.Blocked())
	assert.Empty(t, eval.Warnings)
}

func TestEvaluate_StalePriceDataViolatesBlockingRule(t *testing.T) {
	svc, snaps := newTestService(t)
	stale := goodSnapshot()
	stale.AgeDays = 12
	snaps.set("AAPL", domain.ComponentPriceData, stale)

	eval, err := svc.Evaluate("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	require.True(t, eval.Blocked())
	assert.Equal(t, "age_days", eval.Blocking[0].Rule.MetricName)
	assert.Equal(t, 12.0, eval.Blocking[0].Observed)
}

func TestEvaluate_LowRecordCountOnlyWarns(t *testing.T) {
	svc, snaps := newTestService(t)
	thin := goodSnapshot()
	thin.RecordCount = 5
	snaps.set("AAPL", domain.ComponentPriceData, thin)

	eval, err := svc.Evaluate("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.False(t, eval.Blocked())
	require.Len(t, eval.Warnings, 1)
	assert.Equal(t, "record_count", eval.Warnings[0].Rule.MetricName)
}

func TestEvaluate_MissingDataViolatesEveryRule(t *testing.T) {
	svc, _ := newTestService(t)

	eval, err := svc.Evaluate("GHOST", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.True(t, eval.Blocked(), "absent data cannot satisfy any rule")
}

func TestApprove_CreatesGateAndActiveVersion(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())

	gate, err := svc.Approve("AAPL", domain.ComponentPriceData, "analyst")
	require.NoError(t, err)
	assert.Equal(t, domain.GateApproved, gate.Status)
	assert.NotNil(t, gate.ApprovalTS)
	assert.NotNil(t, gate.ExpiresAt)

	version, snap, err := svc.ActiveVersion("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.True(t, version.IsActive)
	assert.Equal(t, gate.GateID, version.GateID)

	// The pinned snapshot round-trips through the msgpack encoding.
	require.NotNil(t, snap)
	assert.Equal(t, int64(250), snap.RecordCount)
	assert.Equal(t, domain.FreshnessFresh, snap.Freshness)
}

func TestApproveFor_ExplicitWindow(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())

	gate, err := svc.ApproveFor("AAPL", domain.ComponentPriceData, "analyst", 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, gate.ApprovalTS)
	require.NotNil(t, gate.ExpiresAt)
	assert.Equal(t, 24*time.Hour, gate.ExpiresAt.Sub(*gate.ApprovalTS))

	// Non-positive durations fall back to the default window.
	gate, err = svc.ApproveFor("AAPL", domain.ComponentPriceData, "analyst", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultApprovalTTL, gate.ExpiresAt.Sub(*gate.ApprovalTS))
}

func TestApprove_SecondApprovalDeactivatesPrevious(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())

	first, err := svc.Approve("AAPL", domain.ComponentPriceData, "analyst")
	require.NoError(t, err)

	// Later instants produce distinct version ids.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Second) }

	second, err := svc.Approve("AAPL", domain.ComponentPriceData, "analyst")
	require.NoError(t, err)

	active, _, err := svc.ActiveVersion("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.Equal(t, second.GateID, active.GateID)

	history, err := svc.versions.History("AAPL", domain.ComponentPriceData, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	var activeCount int
	for _, v := range history {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "at most one active version per pair")
	_ = first
}

func TestApprove_BlockedComponentRefusedWithAuditGate(t *testing.T) {
	svc, snaps := newTestService(t)
	stale := goodSnapshot()
	stale.AgeDays = 30
	snaps.set("AAPL", domain.ComponentPriceData, stale)

	gate, err := svc.Approve("AAPL", domain.ComponentPriceData, "analyst")
	require.ErrorIs(t, err, ErrGateBlocked)
	require.NotNil(t, gate)
	assert.Equal(t, domain.GateBlocked, gate.Status)
	assert.NotEmpty(t, gate.BlockingRules)

	// No version was activated.
	version, _, err := svc.ActiveVersion("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.Nil(t, version)

	// The refusal is on the audit trail as the latest gate.
	latest, err := svc.gates.Latest("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.Equal(t, domain.GateBlocked, latest.Status)
}

func TestReject_AppendsGateWithoutVersion(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())

	gate, err := svc.Reject("AAPL", domain.ComponentPriceData, "analyst", "suspicious volume spike")
	require.NoError(t, err)
	assert.Equal(t, domain.GateRejected, gate.Status)
	assert.Equal(t, "suspicious volume spike", gate.Metadata["reason"])

	version, _, err := svc.ActiveVersion("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.Nil(t, version)
}

func TestIsAnalysisAllowed(t *testing.T) {
	svc, snaps := newTestService(t)
	for _, c := range domain.AllComponents() {
		snaps.set("AAPL", c, goodSnapshot())
	}

	// Healthy data alone does not admit: every component needs an
	// unexpired approval on record.
	allowed, reasons, err := svc.IsAnalysisAllowed("AAPL")
	require.NoError(t, err)
	assert.False(t, allowed)
	require.Len(t, reasons, len(domain.AllComponents()))
	assert.Contains(t, reasons[0], "no approval")

	for _, c := range domain.AllComponents() {
		_, err := svc.Approve("AAPL", c, "analyst")
		require.NoError(t, err)
	}

	allowed, reasons, err = svc.IsAnalysisAllowed("AAPL")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Empty(t, reasons)

	// Data gone stale since the approval still blocks through the rules.
	stale := goodSnapshot()
	stale.AgeDays = 30
	snaps.set("AAPL", domain.ComponentPriceData, stale)

	allowed, reasons, err = svc.IsAnalysisAllowed("AAPL")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NotEmpty(t, reasons)

	// Restricting the check to healthy, approved components admits the
	// symbol.
	allowed, reasons, err = svc.IsAnalysisAllowed("AAPL", domain.ComponentFundamentals)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Empty(t, reasons)
}

func TestIsAnalysisAllowed_RejectedGateBlocks(t *testing.T) {
	svc, snaps := newTestService(t)
	for _, c := range domain.AllComponents() {
		snaps.set("AAPL", c, goodSnapshot())
		_, err := svc.Approve("AAPL", c, "analyst")
		require.NoError(t, err)
	}

	// A later instant keeps the rejection the newest gate.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Second) }

	_, err := svc.Reject("AAPL", domain.ComponentFundamentals, "analyst", "bad filing")
	require.NoError(t, err)

	allowed, reasons, err := svc.IsAnalysisAllowed("AAPL")
	require.NoError(t, err)
	assert.False(t, allowed)
	require.NotEmpty(t, reasons)
	assert.Contains(t, reasons[0], "rejected")
}

func TestIsAnalysisAllowed_ExpiredApprovalBlocks(t *testing.T) {
	svc, snaps := newTestService(t)
	for _, c := range domain.AllComponents() {
		snaps.set("AAPL", c, goodSnapshot())
		_, err := svc.Approve("AAPL", c, "analyst")
		require.NoError(t, err)
	}

	// Past the TTL the approvals stop admitting, whether or not the
	// expiry sweep has run yet.
	svc.now = func() time.Time { return time.Now().Add(DefaultApprovalTTL + time.Hour) }

	allowed, reasons, err := svc.IsAnalysisAllowed("AAPL")
	require.NoError(t, err)
	assert.False(t, allowed)
	require.Len(t, reasons, len(domain.AllComponents()))
	assert.Contains(t, reasons[0], "expired")
}

func TestExpireOverdue(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())

	_, err := svc.Approve("AAPL", domain.ComponentPriceData, "analyst")
	require.NoError(t, err)

	// Jump past the TTL.
	svc.now = func() time.Time { return time.Now().Add(DefaultApprovalTTL + time.Hour) }

	expired, err := svc.ExpireOverdue()
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	latest, err := svc.gates.Latest("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.Equal(t, domain.GateExpired, latest.Status)

	version, _, err := svc.ActiveVersion("AAPL", domain.ComponentPriceData)
	require.NoError(t, err)
	assert.Nil(t, version, "expired versions are no longer active")
}

func TestApproveAll_IsolatesBlockedSymbols(t *testing.T) {
	svc, snaps := newTestService(t)
	snaps.set("AAPL", domain.ComponentPriceData, goodSnapshot())
	stale := goodSnapshot()
	stale.AgeDays = 30
	snaps.set("GOOGL", domain.ComponentPriceData, stale)

	approved, blocked, errs := svc.ApproveAll([]string{"AAPL", "GOOGL"}, domain.ComponentPriceData, "analyst")
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, blocked)
	assert.Empty(t, errs)
}
