package analysis

import (
	"errors"
	"math"
	"testing"
	"time"

	"FinSheet/internal/domain/models"
)

func set(at time.Time, values map[string]float64) models.IndicatorSet {
	return models.IndicatorSet{Values: values, ComputedAt: at}
}

func TestNewPredictorValidation(t *testing.T) {
	cases := []struct {
		name        string
		rules       []WeightRule
		minFraction float64
	}{
		{"empty table", nil, 0.5},
		{"duplicate indicator", []WeightRule{
			{Indicator: "rsi_14", Weight: 1, Scale: 1},
			{Indicator: "rsi_14", Weight: 2, Scale: 1},
		}, 0.5},
		{"zero scale", []WeightRule{{Indicator: "rsi_14", Weight: 1, Scale: 0}}, 0.5},
		{"empty name", []WeightRule{{Indicator: "", Weight: 1, Scale: 1}}, 0.5},
		{"fraction out of range", []WeightRule{{Indicator: "rsi_14", Weight: 1, Scale: 1}}, 1.5},
	}
	for _, tc := range cases {
		if _, err := NewPredictor(tc.rules, tc.minFraction); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestPredictSignalsAndClamping(t *testing.T) {
	p, err := NewPredictor([]WeightRule{
		{Indicator: "momentum_10", Weight: 1, Center: 0, Scale: 0.1},
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		value     float64
		wantScore float64
		want      models.Signal
	}{
		{5.0, 1, models.SignalBullish},    // clamped to +1
		{-5.0, -1, models.SignalBearish},  // clamped to -1
		{0.01, 0.1, models.SignalNeutral}, // inside the dead zone
		{0.025, 0.25, models.SignalBullish},
		{-0.025, -0.25, models.SignalBearish},
	}
	for _, tc := range cases {
		pred, err := p.Predict("TEST", set(at, map[string]float64{"momentum_10": tc.value}), models.IndicatorSet{})
		if err != nil {
			t.Fatalf("value %v: unexpected error: %v", tc.value, err)
		}
		if math.Abs(pred.Score-tc.wantScore) > 1e-9 {
			t.Fatalf("value %v: score = %v, want %v", tc.value, pred.Score, tc.wantScore)
		}
		if pred.Signal != tc.want {
			t.Fatalf("value %v: signal = %s, want %s", tc.value, pred.Signal, tc.want)
		}
	}
}

func TestPredictInsufficientIndicators(t *testing.T) {
	p, err := NewPredictor([]WeightRule{
		{Indicator: "rsi_14", Weight: 1, Center: 50, Scale: 25},
		{Indicator: "momentum_10", Weight: 1, Center: 0, Scale: 0.1},
		{Indicator: "net_margin", Weight: 1, Center: 0.1, Scale: 0.1},
		{Indicator: "revenue_growth", Weight: 1, Center: 0, Scale: 0.1},
	}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	at := time.Now().UTC()

	_, err = p.Predict("TEST", set(at, map[string]float64{"rsi_14": 60}), models.IndicatorSet{})
	if !errors.Is(err, ErrInsufficientIndicators) {
		t.Fatalf("expected ErrInsufficientIndicators with 1 of 4 present, got %v", err)
	}

	pred, err := p.Predict("TEST",
		set(at, map[string]float64{"rsi_14": 60, "momentum_10": 0.02}),
		models.IndicatorSet{})
	if err != nil {
		t.Fatalf("2 of 4 present should pass the 0.5 floor: %v", err)
	}
	if math.Abs(pred.Confidence-0.5) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.5", pred.Confidence)
	}
}

func TestPredictDeterministic(t *testing.T) {
	p, err := NewPredictor([]WeightRule{
		{Indicator: "rsi_14", Weight: -0.3, Center: 50, Scale: 25},
		{Indicator: "momentum_10", Weight: 0.4, Center: 0, Scale: 0.05},
		{Indicator: "revenue_growth", Weight: 0.2, Center: 0, Scale: 0.1},
	}, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	techAt := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	fundAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	tech := set(techAt, map[string]float64{"rsi_14": 62, "momentum_10": 0.03})
	fund := set(fundAt, map[string]float64{"revenue_growth": 0.08})

	a, err := p.Predict("TEST", tech, fund)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Predict("TEST", tech, fund)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("identical inputs produced different predictions: %+v vs %+v", a, b)
	}
	// timestamp comes from the inputs, not the wall clock
	if !a.GeneratedAt.Equal(techAt) {
		t.Fatalf("GeneratedAt = %v, want the later input timestamp %v", a.GeneratedAt, techAt)
	}
}
