package trend

import (
	"math"
	"testing"
)

func TestAnalyzeInsufficientData(t *testing.T) {
	cases := [][]float64{
		nil,
		{},
		{1},
		{1, 2, 3},
		{1, math.NaN(), 2, math.Inf(1)}, // only 2 usable values
	}
	for _, series := range cases {
		if got := Analyze(series); got != Insufficient {
			t.Fatalf("Analyze(%v) = %q, want %q", series, got, Insufficient)
		}
	}
}

func TestAnalyzeSteady(t *testing.T) {
	if got := Analyze([]float64{10, 10, 10, 10}); got != Steady {
		t.Fatalf("expected %q, got %q", Steady, got)
	}
}

func TestAnalyzeRising(t *testing.T) {
	// delta=30, base=max(1,10)=10, relative=3.0 >= 0.05
	if got := Analyze([]float64{10, 20, 30, 40}); got != Rising {
		t.Fatalf("expected %q, got %q", Rising, got)
	}
}

func TestAnalyzeSlightlyRising(t *testing.T) {
	// delta=2, relative=0.02 < 0.05
	if got := Analyze([]float64{100, 101, 101, 102}); got != SlightlyRising {
		t.Fatalf("expected %q, got %q", SlightlyRising, got)
	}
}

func TestAnalyzeFalling(t *testing.T) {
	if got := Analyze([]float64{40, 30, 20, 10}); got != Falling {
		t.Fatalf("expected %q, got %q", Falling, got)
	}
	if got := Analyze([]float64{102, 101, 101, 100}); got != SlightlyFalling {
		t.Fatalf("expected %q, got %q", SlightlyFalling, got)
	}
}

func TestAnalyzeWindowBound(t *testing.T) {
	// 20 entries; only the last 16 count, so the early spike is ignored.
	series := make([]float64, 0, 20)
	for i := 0; i < 4; i++ {
		series = append(series, 1000)
	}
	for i := 0; i < 16; i++ {
		series = append(series, 50)
	}
	if got := Analyze(series); got != Steady {
		t.Fatalf("expected %q with bounded window, got %q", Steady, got)
	}
}

func TestAnalyzeSkipsNonFinite(t *testing.T) {
	series := []float64{10, math.NaN(), 20, math.Inf(-1), 30, 40}
	if got := Analyze(series); got != Rising {
		t.Fatalf("expected %q, got %q", Rising, got)
	}
}
