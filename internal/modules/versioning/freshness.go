// Package versioning wraps read-side access to collected data with age
// classification. Every read is tagged with a freshness level and the
// staleness multiplier downstream scores must apply.
package versioning

import (
	"fmt"
	"time"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
)

// Classifier buckets data ages into freshness levels using per-component
// thresholds.
type Classifier struct {
	limits map[domain.Component]config.StalenessLimits
	now    func() time.Time
}

// NewClassifier creates a classifier with the given per-component limits.
func NewClassifier(limits map[domain.Component]config.StalenessLimits) *Classifier {
	return &Classifier{limits: limits, now: time.Now}
}

// newClassifierWithClock is used by tests to control time.
func newClassifierWithClock(limits map[domain.Component]config.StalenessLimits, now func() time.Time) *Classifier {
	c := NewClassifier(limits)
	c.now = now
	return c
}

// AgeDays computes the age in days from the most recent of dataDate and
// collectedAt to now. Returns false when both are nil.
func (c *Classifier) AgeDays(dataDate, collectedAt *time.Time) (float64, bool) {
	var ref time.Time
	switch {
	case dataDate == nil && collectedAt == nil:
		return 0, false
	case dataDate == nil:
		ref = *collectedAt
	case collectedAt == nil:
		ref = *dataDate
	default:
		ref = *dataDate
		if collectedAt.After(ref) {
			ref = *collectedAt
		}
	}
	age := c.now().UTC().Sub(ref.UTC()).Hours() / 24
	if age < 0 {
		age = 0
	}
	return age, true
}

// Classify maps an age to a freshness level for a component. Ages exactly on
// a threshold fall into the lower-age bucket.
func (c *Classifier) Classify(component domain.Component, ageDays float64) domain.FreshnessLevel {
	limits, ok := c.limits[component]
	if !ok {
		// Unknown component: treat everything past one day as stale.
		limits = config.StalenessLimits{FreshDays: 1, RecentDays: 7, StaleDays: 30}
	}
	switch {
	case ageDays <= limits.FreshDays:
		return domain.FreshnessFresh
	case ageDays <= limits.RecentDays:
		return domain.FreshnessRecent
	case ageDays <= limits.StaleDays:
		return domain.FreshnessStale
	default:
		return domain.FreshnessVeryStale
	}
}

// QualityScore is the single documented quality formula:
// completeness × freshness impact × validity, clamped to [0,1].
func QualityScore(completeness, freshnessImpact, validity float64) float64 {
	q := completeness * freshnessImpact * validity
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// VersionedData is the metadata attached to every read.
type VersionedData struct {
	Symbol          string                `json:"symbol"`
	Component       domain.Component      `json:"component"`
	AgeDays         float64               `json:"age_days"`
	Freshness       domain.FreshnessLevel `json:"freshness_level"`
	Quality         float64               `json:"quality_score"`
	StalenessImpact float64               `json:"staleness_impact"`
	Warnings        []string              `json:"staleness_warnings,omitempty"`
	VersionID       string                `json:"version_id"`
}

// Missing returns the VersionedData for an absent component.
func Missing(symbol string, component domain.Component) VersionedData {
	return VersionedData{
		Symbol:          symbol,
		Component:       component,
		Freshness:       domain.FreshnessMissing,
		StalenessImpact: 0,
		Warnings:        []string{fmt.Sprintf("no %s data available for %s", component, symbol)},
		VersionID:       versionID(symbol, component, time.Time{}),
	}
}

// versionID is a stable identifier derived from symbol, component, and the
// reference timestamp of the data being read.
func versionID(symbol string, component domain.Component, ref time.Time) string {
	if ref.IsZero() {
		return fmt.Sprintf("%s:%s:missing", symbol, component)
	}
	return fmt.Sprintf("%s:%s:%s", symbol, component, ref.UTC().Format("20060102T150405Z"))
}

// describe builds metadata for present data.
func (c *Classifier) describe(symbol string, component domain.Component, dataDate, collectedAt *time.Time, quality, maxAgeDays float64) (VersionedData, bool) {
	age, ok := c.AgeDays(dataDate, collectedAt)
	if !ok {
		return Missing(symbol, component), false
	}
	if maxAgeDays > 0 && age > maxAgeDays {
		vd := Missing(symbol, component)
		vd.Warnings = []string{fmt.Sprintf("%s data for %s exceeds max age %.0f days (%.1f days old)", component, symbol, maxAgeDays, age)}
		return vd, false
	}

	level := c.Classify(component, age)
	ref := time.Time{}
	if dataDate != nil {
		ref = *dataDate
	}
	if collectedAt != nil && collectedAt.After(ref) {
		ref = *collectedAt
	}

	vd := VersionedData{
		Symbol:          symbol,
		Component:       component,
		AgeDays:         age,
		Freshness:       level,
		Quality:         quality,
		StalenessImpact: level.StalenessImpact(),
		VersionID:       versionID(symbol, component, ref),
	}
	switch level {
	case domain.FreshnessStale, domain.FreshnessVeryStale:
		vd.Warnings = append(vd.Warnings,
			fmt.Sprintf("%s data for %s is %.1f days old (%s)", component, symbol, age, level))
	}
	return vd, true
}
