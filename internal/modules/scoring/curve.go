package scoring

import (
	"github.com/aristath/equityscope/internal/config"
)

// Anchor scores assigned to the five named thresholds. Values between
// anchors interpolate linearly; values beyond the outer anchors extend
// linearly over one more segment width and then cap at 100 or floor at 0.
const (
	scoreExcellent = 90.0
	scoreGood      = 75.0
	scoreAverage   = 60.0
	scorePoor      = 40.0
	scoreVeryPoor  = 20.0
)

// Score maps a raw ratio value onto the 0-100 scale defined by its
// threshold curve.
func Score(value float64, t config.Thresholds) float64 {
	// Normalize to the lower-is-better orientation so one code path serves
	// both directions.
	anchors := [5]float64{t.Excellent, t.Good, t.Average, t.Poor, t.VeryPoor}
	x := value
	if !t.LowerIsBetter {
		x = -x
		for i := range anchors {
			anchors[i] = -anchors[i]
		}
	}
	scores := [5]float64{scoreExcellent, scoreGood, scoreAverage, scorePoor, scoreVeryPoor}

	// Better than excellent: climb toward 100 over one segment width.
	if x <= anchors[0] {
		width := anchors[1] - anchors[0]
		if width <= 0 {
			return 100
		}
		s := scoreExcellent + (anchors[0]-x)/width*(100-scoreExcellent)
		return clampScore(s)
	}

	// Worse than very poor: fall toward 0 over one segment width.
	if x >= anchors[4] {
		width := anchors[4] - anchors[3]
		if width <= 0 {
			return 0
		}
		s := scoreVeryPoor - (x-anchors[4])/width*scoreVeryPoor
		return clampScore(s)
	}

	for i := 0; i < 4; i++ {
		if x <= anchors[i+1] {
			width := anchors[i+1] - anchors[i]
			if width <= 0 {
				return scores[i+1]
			}
			frac := (x - anchors[i]) / width
			return scores[i] + frac*(scores[i+1]-scores[i])
		}
	}
	return scoreVeryPoor
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// clamp01 bounds a quality or weight fraction to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
