// Package sectors provides the sector adjustment engine: per-sector
// multipliers applied to scoring thresholds and the FCF weight.
package sectors

import (
	"strings"

	"github.com/aristath/equityscope/internal/config"
)

// GrowthExpectation labels how much growth a sector is priced for.
type GrowthExpectation string

const (
	GrowthHigh   GrowthExpectation = "high"
	GrowthMedium GrowthExpectation = "medium"
	GrowthLow    GrowthExpectation = "low"
)

// Profile is one sector's adjustment tuple. Multipliers scale valuation
// thresholds; FCFFocus rebalances the FCF weight in the fundamental scorer.
type Profile struct {
	Name                string
	PEMultiplier        float64
	EVEbitdaMultiplier  float64
	PEGMultiplier       float64
	FCFFocus            float64
	GrowthExpectation   GrowthExpectation
}

// DefaultProfile is used for unknown sectors: every multiplier neutral.
var DefaultProfile = Profile{
	Name:               "Unknown",
	PEMultiplier:       1.0,
	EVEbitdaMultiplier: 1.0,
	PEGMultiplier:      1.0,
	FCFFocus:           1.0,
	GrowthExpectation:  GrowthMedium,
}

// profiles is the static table for the canonical GICS sectors.
var profiles = map[string]Profile{
	"Technology": {
		Name: "Technology", PEMultiplier: 1.4, EVEbitdaMultiplier: 1.3,
		PEGMultiplier: 1.2, FCFFocus: 1.1, GrowthExpectation: GrowthHigh,
	},
	"Healthcare": {
		Name: "Healthcare", PEMultiplier: 1.2, EVEbitdaMultiplier: 1.2,
		PEGMultiplier: 1.1, FCFFocus: 1.0, GrowthExpectation: GrowthHigh,
	},
	"Financial Services": {
		Name: "Financial Services", PEMultiplier: 0.8, EVEbitdaMultiplier: 0.9,
		PEGMultiplier: 0.9, FCFFocus: 0.8, GrowthExpectation: GrowthMedium,
	},
	"Consumer Cyclical": {
		Name: "Consumer Cyclical", PEMultiplier: 1.1, EVEbitdaMultiplier: 1.0,
		PEGMultiplier: 1.0, FCFFocus: 1.0, GrowthExpectation: GrowthMedium,
	},
	"Consumer Defensive": {
		Name: "Consumer Defensive", PEMultiplier: 1.0, EVEbitdaMultiplier: 1.0,
		PEGMultiplier: 1.0, FCFFocus: 1.1, GrowthExpectation: GrowthLow,
	},
	"Industrials": {
		Name: "Industrials", PEMultiplier: 1.0, EVEbitdaMultiplier: 1.0,
		PEGMultiplier: 1.0, FCFFocus: 1.0, GrowthExpectation: GrowthMedium,
	},
	"Energy": {
		Name: "Energy", PEMultiplier: 0.8, EVEbitdaMultiplier: 0.8,
		PEGMultiplier: 0.9, FCFFocus: 1.3, GrowthExpectation: GrowthLow,
	},
	"Utilities": {
		Name: "Utilities", PEMultiplier: 0.9, EVEbitdaMultiplier: 0.9,
		PEGMultiplier: 1.0, FCFFocus: 1.2, GrowthExpectation: GrowthLow,
	},
	"Real Estate": {
		Name: "Real Estate", PEMultiplier: 1.1, EVEbitdaMultiplier: 1.1,
		PEGMultiplier: 1.0, FCFFocus: 1.2, GrowthExpectation: GrowthLow,
	},
	"Basic Materials": {
		Name: "Basic Materials", PEMultiplier: 0.9, EVEbitdaMultiplier: 0.9,
		PEGMultiplier: 0.9, FCFFocus: 1.1, GrowthExpectation: GrowthLow,
	},
	"Communication Services": {
		Name: "Communication Services", PEMultiplier: 1.2, EVEbitdaMultiplier: 1.1,
		PEGMultiplier: 1.1, FCFFocus: 1.0, GrowthExpectation: GrowthMedium,
	},
}

// aliases maps lowercase fragments to canonical sector names, checked when
// an exact lookup misses.
var aliases = map[string]string{
	"tech":          "Technology",
	"information":   "Technology",
	"software":      "Technology",
	"biotech":       "Healthcare",
	"pharma":        "Healthcare",
	"health":        "Healthcare",
	"bank":          "Financial Services",
	"financ":        "Financial Services",
	"insurance":     "Financial Services",
	"retail":        "Consumer Cyclical",
	"discretionary": "Consumer Cyclical",
	"staples":       "Consumer Defensive",
	"industrial":    "Industrials",
	"oil":           "Energy",
	"gas":           "Energy",
	"utilit":        "Utilities",
	"reit":          "Real Estate",
	"estate":        "Real Estate",
	"material":      "Basic Materials",
	"mining":        "Basic Materials",
	"telecom":       "Communication Services",
	"media":         "Communication Services",
	"communication": "Communication Services",
}

// Lookup resolves a sector name to its profile. Exact match first, then a
// lowercase-substring scan of the alias map, then the default profile.
func Lookup(sector string) Profile {
	sector = strings.TrimSpace(sector)
	if sector == "" {
		return DefaultProfile
	}
	if p, ok := profiles[sector]; ok {
		return p
	}

	lower := strings.ToLower(sector)
	for fragment, canonical := range aliases {
		if strings.Contains(lower, fragment) {
			return profiles[canonical]
		}
	}
	return DefaultProfile
}

// Canonical returns the canonical sector names in no particular order.
func Canonical() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}

// AdjustThresholds multiplies the valuation threshold groups by the sector's
// multipliers. FCF yield thresholds are deliberately unchanged: the FCF
// effect flows through the weight, not the threshold.
func AdjustThresholds(base map[string]config.Thresholds, sector string) map[string]config.Thresholds {
	p := Lookup(sector)

	adjusted := make(map[string]config.Thresholds, len(base))
	for name, t := range base {
		var mult float64
		switch name {
		case "pe_ratio":
			mult = p.PEMultiplier
		case "ev_ebitda":
			mult = p.EVEbitdaMultiplier
		case "peg_ratio":
			mult = p.PEGMultiplier
		default:
			adjusted[name] = t
			continue
		}
		adjusted[name] = config.Thresholds{
			Excellent:     t.Excellent * mult,
			Good:          t.Good * mult,
			Average:       t.Average * mult,
			Poor:          t.Poor * mult,
			VeryPoor:      t.VeryPoor * mult,
			LowerIsBetter: t.LowerIsBetter,
		}
	}
	return adjusted
}

// FCFWeightMultiplier returns the sector's FCF focus multiplier.
func FCFWeightMultiplier(sector string) float64 {
	return Lookup(sector).FCFFocus
}
