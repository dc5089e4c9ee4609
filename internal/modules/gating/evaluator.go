package gating

import (
	"fmt"

	"github.com/aristath/equityscope/internal/domain"
	"github.com/aristath/equityscope/internal/modules/versioning"
)

// RuleViolation is one failed rule with the observed value.
type RuleViolation struct {
	Rule     domain.QualityRule `json:"rule"`
	Observed float64            `json:"observed"`
}

func (v RuleViolation) String() string {
	return fmt.Sprintf("%s/%s: %g %s %g failed (observed %g)",
		v.Rule.Component, v.Rule.MetricName, v.Observed,
		v.Rule.Operator, v.Rule.Threshold, v.Observed)
}

// Evaluation is the result of running the rule set against one component's
// snapshot.
type Evaluation struct {
	Symbol       string                        `json:"symbol"`
	Component    domain.Component              `json:"component"`
	QualityScore float64                       `json:"quality_score"`
	Blocking     []RuleViolation               `json:"blocking_violations,omitempty"`
	Warnings     []RuleViolation               `json:"warning_violations,omitempty"`
	Snapshot     *versioning.ComponentSnapshot `json:"snapshot"`
}

// Blocked reports whether any blocking rule was violated.
func (e *Evaluation) Blocked() bool {
	return len(e.Blocking) > 0
}

// BlockingDescriptions returns the descriptions of the blocking violations,
// for storage on the gate record.
func (e *Evaluation) BlockingDescriptions() []string {
	out := make([]string, 0, len(e.Blocking))
	for _, v := range e.Blocking {
		desc := v.Rule.Description
		if desc == "" {
			desc = v.String()
		}
		out = append(out, desc)
	}
	return out
}

// evaluate runs every rule for the snapshot's component. A rule passes when
// "metric OPERATOR threshold" holds; anything else, including a missing
// snapshot, is a violation.
func evaluate(snap *versioning.ComponentSnapshot, rules []domain.QualityRule) *Evaluation {
	eval := &Evaluation{
		Symbol:       snap.Symbol,
		Component:    snap.Component,
		QualityScore: snap.Quality,
		Snapshot:     snap,
	}

	for _, rule := range rules {
		if rule.Component != snap.Component {
			continue
		}
		observed, ok := metricValue(snap, rule.MetricName)
		if !ok || !predicateHolds(observed, rule.Operator, rule.Threshold) {
			v := RuleViolation{Rule: rule, Observed: observed}
			if rule.BlocksAnalysis {
				eval.Blocking = append(eval.Blocking, v)
			} else {
				eval.Warnings = append(eval.Warnings, v)
			}
		}
	}
	return eval
}

// metricValue extracts a named metric from the snapshot. Metrics read from
// absent data report not-ok, which counts as a violation of any rule on
// them.
func metricValue(snap *versioning.ComponentSnapshot, name string) (float64, bool) {
	if !snap.HasData {
		return 0, false
	}
	switch name {
	case "quality_score":
		return snap.Quality, true
	case "age_days":
		return snap.AgeDays, true
	case "record_count":
		return float64(snap.RecordCount), true
	default:
		return 0, false
	}
}

func predicateHolds(observed float64, operator string, threshold float64) bool {
	switch operator {
	case ">=":
		return observed >= threshold
	case "<=":
		return observed <= threshold
	case ">":
		return observed > threshold
	case "<":
		return observed < threshold
	case "==":
		return observed == threshold
	default:
		// Unknown operators are rejected by config validation; treat as
		// failed if one slips through.
		return false
	}
}
