// Package advisory turns stored readings into advisory text, either via
// an external generative provider or a deterministic local rule engine.
package advisory

import (
	"github.com/airsense/airsense/internal/reading"
	"github.com/airsense/airsense/internal/trend"
)

// Category buckets for individual sensors.
const (
	CategoryOK       = "ok"
	CategoryElevated = "elevated"
	CategoryHigh     = "high"
)

// IAQ severity bands.
const (
	BandGood          = "good"
	BandModerate      = "moderate"
	BandUSG           = "usg"
	BandUnhealthy     = "unhealthy"
	BandVeryUnhealthy = "very-unhealthy"
	BandHazardous     = "hazardous"
)

// Snapshot is the point-in-time advisory context: the latest reading,
// the recent window, per-sensor category buckets and per-series trend
// labels. It is recomputed on every advisory request and never
// persisted.
type Snapshot struct {
	Latest *reading.Reading
	Recent []reading.Reading

	PM25Category    string
	VOCCategory     string
	EthanolCategory string
	COCategory      string
	IAQBand         string

	PM25Trend string
	VOCTrend  string
	COTrend   string
	IAQTrend  string
}

// BuildSnapshot derives the advisory context from the latest reading
// and the recent window.
func BuildSnapshot(latest *reading.Reading, recent []reading.Reading) *Snapshot {
	s := &Snapshot{
		Latest: latest,
		Recent: recent,
	}
	if latest != nil {
		s.PM25Category = pm25Category(latest.PM25)
		s.VOCCategory = vocCategory(latest.VOC)
		s.EthanolCategory = ethanolCategory(latest.Ethanol)
		s.COCategory = coCategory(latest.CO)
		s.IAQBand = IAQBand(latest.PredictedIAQ)
	}

	s.PM25Trend = trend.Analyze(series(recent, func(r reading.Reading) float64 { return r.PM25 }))
	s.VOCTrend = trend.Analyze(series(recent, func(r reading.Reading) float64 { return r.VOC }))
	s.COTrend = trend.Analyze(series(recent, func(r reading.Reading) float64 { return r.CO }))
	s.IAQTrend = trend.Analyze(series(recent, func(r reading.Reading) float64 { return r.PredictedIAQ }))

	return s
}

func series(recent []reading.Reading, pick func(reading.Reading) float64) []float64 {
	out := make([]float64, 0, len(recent))
	for _, r := range recent {
		out = append(out, pick(r))
	}
	return out
}

func pm25Category(v float64) string {
	switch {
	case v > 100:
		return CategoryHigh
	case v > 50:
		return CategoryElevated
	default:
		return CategoryOK
	}
}

func vocCategory(v float64) string {
	switch {
	case v > 2000:
		return CategoryHigh
	case v > 660:
		return CategoryElevated
	default:
		return CategoryOK
	}
}

func ethanolCategory(v float64) string {
	switch {
	case v > 1000:
		return CategoryHigh
	case v > 500:
		return CategoryElevated
	default:
		return CategoryOK
	}
}

func coCategory(v float64) string {
	switch {
	case v > 15:
		return CategoryHigh
	case v > 9:
		return CategoryElevated
	default:
		return CategoryOK
	}
}

// IAQBand buckets a composite IAQ value into one of six severity bands.
func IAQBand(v float64) string {
	switch {
	case v < 50:
		return BandGood
	case v < 100:
		return BandModerate
	case v < 150:
		return BandUSG
	case v < 200:
		return BandUnhealthy
	case v < 300:
		return BandVeryUnhealthy
	default:
		return BandHazardous
	}
}
