package analysis

import (
	"errors"
	"math"
	"testing"
	"time"

	"FinSheet/internal/domain/models"
)

func barsFromCloses(closes ...float64) []models.PriceBar {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func TestTechnicalEmptySeries(t *testing.T) {
	_, err := NewTechnical().Analyze(nil)
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestTechnicalMalformedSeries(t *testing.T) {
	bars := barsFromCloses(1, 2, 3)
	bars[2].Timestamp = bars[1].Timestamp
	_, err := NewTechnical().Analyze(bars)
	if !errors.Is(err, ErrMalformedSeries) {
		t.Fatalf("expected ErrMalformedSeries, got %v", err)
	}
}

func TestTechnicalShortSeriesOmitsIndicators(t *testing.T) {
	bars := barsFromCloses(10, 11, 12, 13, 14)
	set, err := NewTechnical().Analyze(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Values) != 0 {
		t.Fatalf("expected no indicators for 5 bars, got %v", set.Names())
	}
	if !set.ComputedAt.Equal(bars[4].Timestamp) {
		t.Fatalf("ComputedAt should be last bar timestamp")
	}
}

func TestTechnicalConstantSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	set, err := NewTechnical().Analyze(barsFromCloses(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]float64{
		IndSMA20:          100,
		IndEMA20:          100,
		IndBollingerUpper: 100,
		IndBollingerLower: 100,
		IndMomentum10:     0,
		IndRSI14:          100, // no losses at all
		IndVolatility20:   0,
	}
	for name, w := range want {
		got, ok := set.Values[name]
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if math.Abs(got-w) > 1e-9 {
			t.Fatalf("%s = %v, want %v", name, got, w)
		}
	}
}

func TestTechnicalTrendingSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	set, err := NewTechnical().Analyze(barsFromCloses(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mean of 11..30
	if got := set.Values[IndSMA20]; math.Abs(got-20.5) > 1e-9 {
		t.Fatalf("sma_20 = %v, want 20.5", got)
	}
	// 30/20 - 1
	if got := set.Values[IndMomentum10]; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("momentum_10 = %v, want 0.5", got)
	}
	// all gains
	if got := set.Values[IndRSI14]; math.Abs(got-100) > 1e-9 {
		t.Fatalf("rsi_14 = %v, want 100", got)
	}
	upper, lower := set.Values[IndBollingerUpper], set.Values[IndBollingerLower]
	if upper <= set.Values[IndSMA20] || lower >= set.Values[IndSMA20] {
		t.Fatalf("bollinger bands should straddle the sma: upper=%v lower=%v", upper, lower)
	}
}

func TestTechnicalDecliningSeriesRSI(t *testing.T) {
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = float64(100 - i)
	}
	set, err := NewTechnical().Analyze(barsFromCloses(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Values[IndRSI14]; math.Abs(got) > 1e-9 {
		t.Fatalf("rsi_14 = %v, want 0 for an all-loss series", got)
	}
}

func TestTechnicalDeterministic(t *testing.T) {
	closes := []float64{5, 7, 6, 8, 9, 11, 10, 12, 14, 13, 15, 16, 18, 17, 19, 21, 20, 22, 24, 23, 25}
	a, err := NewTechnical().Analyze(barsFromCloses(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := NewTechnical().Analyze(barsFromCloses(closes...))
	for name, v := range a.Values {
		if b.Values[name] != v {
			t.Fatalf("%s differs between identical runs", name)
		}
	}
}
