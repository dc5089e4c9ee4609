package gating

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/events"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// ErrGateBlocked is returned when an approval is attempted while blocking
// rules are violated.
var ErrGateBlocked = errors.New("component blocked by quality rules")

// DefaultApprovalTTL is how long an approval stays valid before the
// expiration sweep retires it.
const DefaultApprovalTTL = 7 * 24 * time.Hour

// Snapshotter provides the condensed component state the evaluator reads.
type Snapshotter interface {
	Snapshot(symbol string, component domain.Component) (*versioning.ComponentSnapshot, error)
}

// Service is the quality gating engine.
type Service struct {
	db        *sql.DB
	gates     *GateRepository
	versions  *VersionRepository
	rules     *RuleRepository
	snapshots Snapshotter
	bus       *events.Bus
	ttl       time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(
	db *sql.DB,
	gates *GateRepository,
	versions *VersionRepository,
	rules *RuleRepository,
	snapshots Snapshotter,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:        db,
		gates:     gates,
		versions:  versions,
		rules:     rules,
		snapshots: snapshots,
		bus:       bus,
		ttl:       DefaultApprovalTTL,
		now:       time.Now,
		log:       log.With().Str("module", "gating").Logger(),
	}
}

// SeedRules stores the configured rule set, replacing whatever is persisted.
func (s *Service) SeedRules(rules []domain.QualityRule) error {
	return s.rules.Replace(rules)
}

// Evaluate runs the rule set against the current snapshot of one component.
func (s *Service) Evaluate(symbol string, component domain.Component) (*Evaluation, error) {
	snap, err := s.snapshots.Snapshot(symbol, component)
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s/%s: %w", symbol, component, err)
	}
	rules, err := s.rules.ForComponent(component)
	if err != nil {
		return nil, err
	}
	return evaluate(snap, rules), nil
}

// EvaluateAll evaluates every component of a symbol.
func (s *Service) EvaluateAll(symbol string) (map[domain.Component]*Evaluation, error) {
	out := make(map[domain.Component]*Evaluation, len(domain.AllComponents()))
	for _, component := range domain.AllComponents() {
		eval, err := s.Evaluate(symbol, component)
		if err != nil {
			return nil, err
		}
		out[component] = eval
	}
	return out, nil
}

// History returns the recent gates for a component, newest first.
func (s *Service) History(symbol string, component domain.Component, limit int) ([]domain.QualityGate, error) {
	return s.gates.History(symbol, component, limit)
}

// VersionHistory returns the recent data versions for a component, newest
// first.
func (s *Service) VersionHistory(symbol string, component domain.Component, limit int) ([]domain.DataVersion, error) {
	return s.versions.History(symbol, component, limit)
}

// Rules returns the persisted rule set.
func (s *Service) Rules() ([]domain.QualityRule, error) {
	return s.rules.All()
}

// Approve evaluates the component and, when no blocking rule is violated,
// appends an APPROVED gate and activates a snapshot version in one
// transaction. The previous active version for the pair is deactivated.
// Returns ErrGateBlocked (with a BLOCKED gate appended for the audit trail)
// when blocking rules fail.
func (s *Service) Approve(symbol string, component domain.Component, approver string) (*domain.QualityGate, error) {
	return s.ApproveFor(symbol, component, approver, s.ttl)
}

// ApproveFor is Approve with an explicit validity window. Non-positive
// durations fall back to the default TTL.
func (s *Service) ApproveFor(symbol string, component domain.Component, approver string, ttl time.Duration) (*domain.QualityGate, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	eval, err := s.Evaluate(symbol, component)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if eval.Blocked() {
		gate := s.newGate(symbol, component, domain.GateBlocked, eval, approver, now)
		if err := s.gates.Insert(s.db, gate); err != nil {
			return nil, err
		}
		s.emitGateChanged(gate)
		s.log.Warn().Str("symbol", symbol).Str("component", string(component)).
			Strs("blocking", gate.BlockingRules).Msg("approval refused: blocking rules violated")
		return &gate, fmt.Errorf("%w: %s/%s: %v", ErrGateBlocked, symbol, component, gate.BlockingRules)
	}

	snapshotRef, err := encodeSnapshot(eval.Snapshot)
	if err != nil {
		return nil, err
	}

	expires := now.Add(ttl)
	gate := s.newGate(symbol, component, domain.GateApproved, eval, approver, now)
	gate.ApprovalTS = &now
	gate.ExpiresAt = &expires

	version := domain.DataVersion{
		VersionID:   fmt.Sprintf("%s:%s:%s", symbol, component, now.Format("20060102T150405Z")),
		Symbol:      symbol,
		Component:   component,
		SnapshotRef: snapshotRef,
		GateID:      gate.GateID,
		CreatedAt:   now,
		ApprovedAt:  &now,
		ExpiresAt:   &expires,
		IsActive:    true,
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.gates.Insert(tx, gate); err != nil {
			return err
		}
		if err := s.versions.Deactivate(tx, symbol, component); err != nil {
			return err
		}
		return s.versions.Insert(tx, version)
	})
	if err != nil {
		return nil, fmt.Errorf("approval transaction for %s/%s: %w", symbol, component, err)
	}

	s.emitGateChanged(gate)
	s.log.Info().Str("symbol", symbol).Str("component", string(component)).
		Str("gate_id", gate.GateID).Str("version_id", version.VersionID).
		Msg("component approved")
	return &gate, nil
}

// Reject appends a REJECTED gate. Rejection never creates a version.
func (s *Service) Reject(symbol string, component domain.Component, approver, reason string) (*domain.QualityGate, error) {
	eval, err := s.Evaluate(symbol, component)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	gate := s.newGate(symbol, component, domain.GateRejected, eval, approver, now)
	if reason != "" {
		gate.Metadata["reason"] = reason
	}
	if err := s.gates.Insert(s.db, gate); err != nil {
		return nil, err
	}

	s.emitGateChanged(gate)
	s.log.Info().Str("symbol", symbol).Str("component", string(component)).
		Str("reason", reason).Msg("component rejected")
	return &gate, nil
}

// IsAnalysisAllowed reports whether scoring may run for a symbol. Every
// required component must carry an APPROVED gate that has not expired, and
// none may currently violate a blocking rule. No required components means
// all of them. The returned reasons name every blocker.
func (s *Service) IsAnalysisAllowed(symbol string, required ...domain.Component) (bool, []string, error) {
	if len(required) == 0 {
		required = domain.AllComponents()
	}
	now := s.now().UTC()
	var reasons []string
	for _, component := range required {
		latest, err := s.gates.Latest(symbol, component)
		if err != nil {
			return false, nil, err
		}
		switch {
		case latest == nil:
			reasons = append(reasons, fmt.Sprintf("%s: no approval on record", component))
			continue
		case latest.Status == domain.GateRejected:
			reasons = append(reasons, fmt.Sprintf("%s: latest gate rejected", component))
			continue
		case latest.Status != domain.GateApproved:
			reasons = append(reasons, fmt.Sprintf("%s: latest gate %s", component, latest.Status))
			continue
		case latest.ExpiresAt == nil || !now.Before(*latest.ExpiresAt):
			reasons = append(reasons, fmt.Sprintf("%s: approval expired", component))
			continue
		}

		eval, err := s.Evaluate(symbol, component)
		if err != nil {
			return false, nil, err
		}
		if eval.Blocked() {
			reasons = append(reasons, eval.BlockingDescriptions()...)
		}
	}
	return len(reasons) == 0, reasons, nil
}

// ExpireOverdue retires approvals past their TTL and deactivates their
// versions. Run periodically by the scheduler.
func (s *Service) ExpireOverdue() (int64, error) {
	now := s.now().UTC()
	gates, err := s.gates.ExpireOverdue(now)
	if err != nil {
		return 0, err
	}
	if _, err := s.versions.DeactivateExpired(now); err != nil {
		return gates, err
	}
	if gates > 0 {
		s.bus.Emit(events.GateChanged, "gating", map[string]any{"expired": gates})
	}
	return gates, nil
}

// ApproveAll approves every symbol/component pair in the list, isolating
// per-symbol failures. Blocked pairs are counted, not fatal.
func (s *Service) ApproveAll(symbols []string, component domain.Component, approver string) (approved, blocked int, errs []error) {
	for _, symbol := range symbols {
		_, err := s.Approve(symbol, component, approver)
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrGateBlocked):
			blocked++
		default:
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return approved, blocked, errs
}

// ActiveVersion returns the active data version for a pair, with its
// decoded snapshot.
func (s *Service) ActiveVersion(symbol string, component domain.Component) (*domain.DataVersion, *versioning.ComponentSnapshot, error) {
	v, err := s.versions.Active(symbol, component)
	if err != nil || v == nil {
		return v, nil, err
	}
	snap, err := decodeSnapshot(v.SnapshotRef)
	if err != nil {
		return v, nil, fmt.Errorf("snapshot for version %s: %w", v.VersionID, err)
	}
	return v, snap, nil
}

func (s *Service) newGate(symbol string, component domain.Component, status domain.GateStatus, eval *Evaluation, approver string, now time.Time) domain.QualityGate {
	metadata := map[string]string{
		"freshness": string(eval.Snapshot.Freshness),
		"age_days":  fmt.Sprintf("%.1f", eval.Snapshot.AgeDays),
	}
	for i, w := range eval.Warnings {
		metadata[fmt.Sprintf("warning_%d", i)] = w.String()
	}
	return domain.QualityGate{
		GateID:        uuid.NewString(),
		Symbol:        symbol,
		Component:     component,
		Status:        status,
		QualityScore:  eval.QualityScore,
		Approver:      approver,
		BlockingRules: eval.BlockingDescriptions(),
		Metadata:      metadata,
		CreatedAt:     now,
	}
}

func (s *Service) emitGateChanged(gate domain.QualityGate) {
	s.bus.Emit(events.GateChanged, "gating", map[string]any{
		"gate_id":   gate.GateID,
		"symbol":    gate.Symbol,
		"component": string(gate.Component),
		"status":    string(gate.Status),
		"created":   dateparse.FormatTime(gate.CreatedAt),
	})
}

// encodeSnapshot packs the snapshot into the version's snapshot_ref column.
func encodeSnapshot(snap *versioning.ComponentSnapshot) (string, error) {
	raw, err := msgpack.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeSnapshot(ref string) (*versioning.ComponentSnapshot, error) {
	raw, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot ref: %w", err)
	}
	var snap versioning.ComponentSnapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to unpack snapshot: %w", err)
	}
	return &snap, nil
}
