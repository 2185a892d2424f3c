// Package trend labels the qualitative direction of a numeric series
// over a bounded recent window.
package trend

import "math"

// Trend labels returned by Analyze.
const (
	Insufficient    = "insufficient data"
	Steady          = "steady"
	SlightlyRising  = "slightly rising"
	SlightlyFalling = "slightly falling"
	Rising          = "rising"
	Falling         = "falling"
)

// windowSize bounds how far back the analyzer looks.
const windowSize = 16

// Analyze computes a qualitative trend label for the series. Non-finite
// entries are ignored; fewer than 4 usable values is "insufficient
// data". The label derives from the first and last value of the last 16
// usable entries: an absolute move under 0.01 is steady, a move under 5%
// of the starting magnitude is a slight trend, anything larger a full
// trend.
func Analyze(series []float64) string {
	usable := make([]float64, 0, len(series))
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		usable = append(usable, v)
	}

	if len(usable) < 4 {
		return Insufficient
	}

	if len(usable) > windowSize {
		usable = usable[len(usable)-windowSize:]
	}

	first := usable[0]
	last := usable[len(usable)-1]
	delta := last - first
	magnitude := math.Abs(delta)
	base := math.Max(1, math.Abs(first))
	relative := magnitude / base

	if magnitude < 0.01 {
		return Steady
	}
	if relative < 0.05 {
		if delta > 0 {
			return SlightlyRising
		}
		return SlightlyFalling
	}
	if delta > 0 {
		return Rising
	}
	return Falling
}
