package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDBCounter atomic.Int64

// newTestDB opens a uniquely named shared-cache in-memory database so every
// pooled connection sees the same tables.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := New(Config{Path: path, Name: "analytics"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_AppliesAllVersions(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Migrate())

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	// Every table from the schema must exist.
	for _, table := range []string{
		"stocks", "price_data", "fundamental_data", "news_articles",
		"reddit_posts", "daily_sentiment", "calculated_metrics",
		"quality_gates", "data_versions", "quality_gate_rules", "schema_version",
	} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count))
	assert.Equal(t, len(migrations), count, "re-running migrations must not re-apply steps")
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	sentinel := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			`INSERT INTO stocks (symbol, name, created_at, updated_at) VALUES ('AAPL', 'Apple', datetime('now'), datetime('now'))`,
		)
		require.NoError(t, execErr)
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM stocks`).Scan(&count))
	assert.Equal(t, 0, count, "insert must be rolled back")
}

func TestWithTransaction_RecoverFromPanic(t *testing.T) {
	db := newTestDB(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}
