// Package gating implements the quality gating engine: rule evaluation
// against component snapshots, approval and rejection gates, and the
// versioned data snapshots an approval pins.
package gating

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// GateRepository handles quality_gates table operations. Gates are
// append-only: state changes insert a new row, and the newest row per
// (symbol, component) is authoritative.
type GateRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewGateRepository(db *sql.DB, log zerolog.Logger) *GateRepository {
	return &GateRepository{db: db, log: log.With().Str("repo", "gates").Logger()}
}

const gateColumns = `gate_id, symbol, component, status, quality_score,
approval_ts, approver, expires_at, blocking_rules, metadata, created_at`

// Insert appends one gate record inside the given transaction. Pass the
// repository's own db as execer for standalone inserts.
func (r *GateRepository) Insert(exec execer, g domain.QualityGate) error {
	blocking, err := json.Marshal(g.BlockingRules)
	if err != nil {
		return fmt.Errorf("failed to encode blocking rules: %w", err)
	}
	metadata, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode gate metadata: %w", err)
	}

	_, err = exec.Exec(`INSERT INTO quality_gates (`+gateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.GateID, g.Symbol, string(g.Component), string(g.Status), g.QualityScore,
		nullableTime(g.ApprovalTS), g.Approver, nullableTime(g.ExpiresAt),
		string(blocking), string(metadata), dateparse.FormatTime(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert gate %s: %w", g.GateID, err)
	}
	return nil
}

// Latest returns the newest gate for a (symbol, component) pair, nil when
// the pair has never been gated.
func (r *GateRepository) Latest(symbol string, component domain.Component) (*domain.QualityGate, error) {
	row := r.db.QueryRow(`SELECT `+gateColumns+` FROM quality_gates
		WHERE symbol = ? AND component = ?
		ORDER BY created_at DESC, gate_id DESC LIMIT 1`,
		symbol, string(component))
	g, err := scanGate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest gate for %s/%s: %w", symbol, component, err)
	}
	return g, nil
}

// History returns gates for a (symbol, component) pair, newest first.
func (r *GateRepository) History(symbol string, component domain.Component, limit int) ([]domain.QualityGate, error) {
	rows, err := r.db.Query(`SELECT `+gateColumns+` FROM quality_gates
		WHERE symbol = ? AND component = ?
		ORDER BY created_at DESC, gate_id DESC LIMIT ?`,
		symbol, string(component), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query gate history for %s/%s: %w", symbol, component, err)
	}
	defer rows.Close()
	return collectGates(rows)
}

// ExpireOverdue flips approved gates whose expiry has passed to EXPIRED and
// returns how many were flipped.
func (r *GateRepository) ExpireOverdue(now time.Time) (int64, error) {
	res, err := r.db.Exec(`UPDATE quality_gates SET status = ?
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(domain.GateExpired), string(domain.GateApproved), dateparse.FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire gates: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().Int64("count", n).Msg("expired overdue gates")
	}
	return n, nil
}

func collectGates(rows *sql.Rows) ([]domain.QualityGate, error) {
	var gates []domain.QualityGate
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gate: %w", err)
		}
		gates = append(gates, *g)
	}
	return gates, rows.Err()
}

func scanGate(s scanner) (*domain.QualityGate, error) {
	var g domain.QualityGate
	var component, status, blocking, metadata, createdAt string
	var approvalTS, expiresAt sql.NullString
	if err := s.Scan(
		&g.GateID, &g.Symbol, &component, &status, &g.QualityScore,
		&approvalTS, &g.Approver, &expiresAt, &blocking, &metadata, &createdAt,
	); err != nil {
		return nil, err
	}
	g.Component = domain.Component(component)
	g.Status = domain.GateStatus(status)

	if err := json.Unmarshal([]byte(blocking), &g.BlockingRules); err != nil {
		return nil, fmt.Errorf("stored blocking rules: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &g.Metadata); err != nil {
		return nil, fmt.Errorf("stored gate metadata: %w", err)
	}

	var err error
	if g.ApprovalTS, err = parseNullableTime(approvalTS); err != nil {
		return nil, fmt.Errorf("stored approval timestamp: %w", err)
	}
	if g.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, fmt.Errorf("stored gate expiry: %w", err)
	}
	created, err := dateparse.Parse(createdAt)
	if err != nil {
		return nil, fmt.Errorf("stored gate creation time: %w", err)
	}
	g.CreatedAt = created
	return &g, nil
}

// VersionRepository handles data_versions table operations.
type VersionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewVersionRepository(db *sql.DB, log zerolog.Logger) *VersionRepository {
	return &VersionRepository{db: db, log: log.With().Str("repo", "versions").Logger()}
}

const versionColumns = `version_id, symbol, component, snapshot_ref, gate_id,
created_at, approved_at, expires_at, is_active`

// Insert writes one data version inside the given transaction.
func (r *VersionRepository) Insert(exec execer, v domain.DataVersion) error {
	_, err := exec.Exec(`INSERT INTO data_versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, v.Symbol, string(v.Component), v.SnapshotRef, v.GateID,
		dateparse.FormatTime(v.CreatedAt), nullableTime(v.ApprovedAt),
		nullableTime(v.ExpiresAt), boolToInt(v.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to insert data version %s: %w", v.VersionID, err)
	}
	return nil
}

// Deactivate clears the active flag on every version of a (symbol,
// component) pair inside the given transaction. At most one version per
// pair is active, enforced by calling this before each activating insert.
func (r *VersionRepository) Deactivate(exec execer, symbol string, component domain.Component) error {
	_, err := exec.Exec(`UPDATE data_versions SET is_active = 0
		WHERE symbol = ? AND component = ? AND is_active = 1`,
		symbol, string(component))
	if err != nil {
		return fmt.Errorf("failed to deactivate versions for %s/%s: %w", symbol, component, err)
	}
	return nil
}

// Active returns the active version for a (symbol, component) pair, nil
// when none is active.
func (r *VersionRepository) Active(symbol string, component domain.Component) (*domain.DataVersion, error) {
	row := r.db.QueryRow(`SELECT `+versionColumns+` FROM data_versions
		WHERE symbol = ? AND component = ? AND is_active = 1
		ORDER BY created_at DESC LIMIT 1`,
		symbol, string(component))
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active version for %s/%s: %w", symbol, component, err)
	}
	return v, nil
}

// History returns versions for a (symbol, component) pair, newest first.
func (r *VersionRepository) History(symbol string, component domain.Component, limit int) ([]domain.DataVersion, error) {
	rows, err := r.db.Query(`SELECT `+versionColumns+` FROM data_versions
		WHERE symbol = ? AND component = ?
		ORDER BY created_at DESC LIMIT ?`,
		symbol, string(component), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query version history for %s/%s: %w", symbol, component, err)
	}
	defer rows.Close()

	var versions []domain.DataVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data version: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

// DeactivateExpired clears the active flag on versions whose expiry has
// passed.
func (r *VersionRepository) DeactivateExpired(now time.Time) (int64, error) {
	res, err := r.db.Exec(`UPDATE data_versions SET is_active = 0
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		dateparse.FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired versions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanVersion(s scanner) (*domain.DataVersion, error) {
	var v domain.DataVersion
	var component, createdAt string
	var approvedAt, expiresAt sql.NullString
	var active int
	if err := s.Scan(
		&v.VersionID, &v.Symbol, &component, &v.SnapshotRef, &v.GateID,
		&createdAt, &approvedAt, &expiresAt, &active,
	); err != nil {
		return nil, err
	}
	v.Component = domain.Component(component)
	v.IsActive = active != 0

	created, err := dateparse.Parse(createdAt)
	if err != nil {
		return nil, fmt.Errorf("stored version creation time: %w", err)
	}
	v.CreatedAt = created
	if v.ApprovedAt, err = parseNullableTime(approvedAt); err != nil {
		return nil, fmt.Errorf("stored approval time: %w", err)
	}
	if v.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, fmt.Errorf("stored version expiry: %w", err)
	}
	return &v, nil
}

// RuleRepository persists the configured gate rules so the active rule set
// survives restarts and is inspectable via SQL.
type RuleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRuleRepository(db *sql.DB, log zerolog.Logger) *RuleRepository {
	return &RuleRepository{db: db, log: log.With().Str("repo", "gate_rules").Logger()}
}

// Replace swaps the stored rule set for the given one in a single
// transaction.
func (r *RuleRepository) Replace(rules []domain.QualityRule) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rule replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM quality_gate_rules`); err != nil {
		return fmt.Errorf("failed to clear gate rules: %w", err)
	}
	for _, rule := range rules {
		if _, err := tx.Exec(`INSERT INTO quality_gate_rules
			(component, metric_name, threshold, operator, blocks_analysis, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(rule.Component), rule.MetricName, rule.Threshold,
			rule.Operator, boolToInt(rule.BlocksAnalysis), rule.Description,
		); err != nil {
			return fmt.Errorf("failed to insert gate rule %s/%s: %w", rule.Component, rule.MetricName, err)
		}
	}
	return tx.Commit()
}

// ForComponent returns the stored rules for one component.
func (r *RuleRepository) ForComponent(component domain.Component) ([]domain.QualityRule, error) {
	rows, err := r.db.Query(`SELECT component, metric_name, threshold, operator,
		blocks_analysis, description
		FROM quality_gate_rules WHERE component = ?`, string(component))
	if err != nil {
		return nil, fmt.Errorf("failed to query gate rules for %s: %w", component, err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// All returns every stored rule.
func (r *RuleRepository) All() ([]domain.QualityRule, error) {
	rows, err := r.db.Query(`SELECT component, metric_name, threshold, operator,
		blocks_analysis, description FROM quality_gate_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gate rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]domain.QualityRule, error) {
	var rules []domain.QualityRule
	for rows.Next() {
		var rule domain.QualityRule
		var component string
		var blocks int
		if err := rows.Scan(&component, &rule.MetricName, &rule.Threshold,
			&rule.Operator, &blocks, &rule.Description); err != nil {
			return nil, fmt.Errorf("failed to scan gate rule: %w", err)
		}
		rule.Component = domain.Component(component)
		rule.BlocksAnalysis = blocks != 0
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dateparse.FormatTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := dateparse.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
