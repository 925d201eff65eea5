package analysis

import (
	"fmt"
	"sort"

	"FinSheet/internal/domain/models"
)

// Signal thresholds on the summed score.
const (
	bullishThreshold = 0.25
	bearishThreshold = -0.25
)

// WeightRule declares how one indicator contributes to the score. The value
// is normalized to [-1, 1] as (value-Center)/Scale, clamped, then weighted.
// Rules are configuration, not code: tuning them requires no code change.
type WeightRule struct {
	Indicator string
	Weight    float64
	Center    float64
	Scale     float64
}

// Predictor combines technical and fundamental indicator sets into a scored
// prediction. Deterministic: equal input sets produce identical predictions.
type Predictor struct {
	rules       []WeightRule
	minFraction float64
}

// NewPredictor validates the weighting table and returns a predictor.
// minFraction is the minimum fraction of weighted indicators that must be
// present for a prediction to be produced at all.
func NewPredictor(rules []WeightRule, minFraction float64) (*Predictor, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("weighting table is empty")
	}
	if minFraction < 0 || minFraction > 1 {
		return nil, fmt.Errorf("min indicator fraction %v out of [0,1]", minFraction)
	}
	seen := make(map[string]bool, len(rules))
	sorted := make([]WeightRule, len(rules))
	copy(sorted, rules)
	for _, r := range sorted {
		if r.Indicator == "" {
			return nil, fmt.Errorf("weight rule with empty indicator name")
		}
		if r.Scale <= 0 {
			return nil, fmt.Errorf("weight rule %s: scale must be positive", r.Indicator)
		}
		if seen[r.Indicator] {
			return nil, fmt.Errorf("duplicate weight rule for %s", r.Indicator)
		}
		seen[r.Indicator] = true
	}
	// Fixed iteration order keeps the summed score reproducible.
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Indicator < sorted[j].Indicator })
	return &Predictor{rules: sorted, minFraction: minFraction}, nil
}

func (p *Predictor) Predict(symbol string, technical, fundamental models.IndicatorSet) (models.Prediction, error) {
	merged := models.Merge(technical, fundamental)

	present := 0
	score := 0.0
	for _, r := range p.rules {
		v, ok := merged.Values[r.Indicator]
		if !ok {
			continue
		}
		present++
		score += r.Weight * clamp((v-r.Center)/r.Scale, -1, 1)
	}

	fraction := float64(present) / float64(len(p.rules))
	if fraction < p.minFraction {
		return models.Prediction{}, fmt.Errorf("%w: %d of %d weighted indicators present (min fraction %v)",
			ErrInsufficientIndicators, present, len(p.rules), p.minFraction)
	}

	sig := models.SignalNeutral
	switch {
	case score >= bullishThreshold:
		sig = models.SignalBullish
	case score <= bearishThreshold:
		sig = models.SignalBearish
	}

	// GeneratedAt derives from the inputs, not the wall clock, so identical
	// indicator sets reproduce the prediction bit for bit.
	return models.Prediction{
		Symbol:      symbol,
		Signal:      sig,
		Score:       score,
		Confidence:  fraction,
		GeneratedAt: merged.ComputedAt,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
