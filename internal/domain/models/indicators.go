package models

import (
	"sort"
	"time"
)

// IndicatorSet is the output of one analyzer run for one instrument.
// Values maps indicator name to its computed value. Indicators whose window
// exceeds the available history are simply absent. Indeterminate lists
// indicators that could not be computed from the reported fields (bad or
// missing inputs); they are never present in Values.
// A set is immutable once computed; the next run supersedes it.
type IndicatorSet struct {
	Values        map[string]float64 `json:"values"`
	Indeterminate []string           `json:"indeterminate,omitempty"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// Names returns the present indicator names in sorted order.
func (s IndicatorSet) Names() []string {
	names := make([]string, 0, len(s.Values))
	for k := range s.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge combines two sets into a new one. Overlapping names are not expected;
// if both sides carry a name the second wins.
func Merge(a, b IndicatorSet) IndicatorSet {
	out := IndicatorSet{
		Values:     make(map[string]float64, len(a.Values)+len(b.Values)),
		ComputedAt: a.ComputedAt,
	}
	if b.ComputedAt.After(out.ComputedAt) {
		out.ComputedAt = b.ComputedAt
	}
	for k, v := range a.Values {
		out.Values[k] = v
	}
	for k, v := range b.Values {
		out.Values[k] = v
	}
	out.Indeterminate = append(out.Indeterminate, a.Indeterminate...)
	out.Indeterminate = append(out.Indeterminate, b.Indeterminate...)
	sort.Strings(out.Indeterminate)
	return out
}

// Signal is the categorical direction of a prediction.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalNeutral Signal = "neutral"
	SignalBearish Signal = "bearish"
)

// Prediction is the scored output for one instrument. One current prediction
// per symbol; history is retained as an append-only sequence.
type Prediction struct {
	Symbol      string    `json:"symbol"`
	Signal      Signal    `json:"signal"`
	Score       float64   `json:"score"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}
