package analysis

import (
	"fmt"
	"math"

	"FinSheet/internal/domain/models"
)

// Indicator names emitted by the technical analyzer.
const (
	IndSMA20          = "sma_20"
	IndEMA20          = "ema_20"
	IndMomentum10     = "momentum_10"
	IndRSI14          = "rsi_14"
	IndVolatility20   = "volatility_20"
	IndBollingerUpper = "bollinger_upper"
	IndBollingerLower = "bollinger_lower"
)

const (
	maWindow       = 20
	momentumWindow = 10
	rsiWindow      = 14
	volWindow      = 20
	bollingerK     = 2.0
)

// Technical computes price-derived indicators from an ordered bar series.
// Pure function of its input; indicators whose window exceeds the available
// history are omitted from the result, never zero-filled.
type Technical struct{}

// NewTechnical returns a technical analyzer.
func NewTechnical() *Technical { return &Technical{} }

func (t *Technical) Analyze(bars []models.PriceBar) (models.IndicatorSet, error) {
	if len(bars) == 0 {
		return models.IndicatorSet{}, ErrEmptySeries
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return models.IndicatorSet{}, fmt.Errorf("%w: bar %d (%s) not after bar %d",
				ErrMalformedSeries, i, bars[i].Timestamp.Format("2006-01-02T15:04:05Z07:00"), i-1)
		}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	set := models.IndicatorSet{
		Values:     make(map[string]float64),
		ComputedAt: bars[len(bars)-1].Timestamp,
	}

	if len(closes) >= maWindow {
		sma := mean(closes[len(closes)-maWindow:])
		sd := stddev(closes[len(closes)-maWindow:], sma)
		set.Values[IndSMA20] = sma
		set.Values[IndEMA20] = ema(closes, maWindow)
		set.Values[IndBollingerUpper] = sma + bollingerK*sd
		set.Values[IndBollingerLower] = sma - bollingerK*sd
	}
	if len(closes) > momentumWindow {
		prev := closes[len(closes)-1-momentumWindow]
		if prev != 0 {
			set.Values[IndMomentum10] = closes[len(closes)-1]/prev - 1
		}
	}
	if len(closes) > rsiWindow {
		set.Values[IndRSI14] = rsi(closes, rsiWindow)
	}
	if rets := logReturns(closes); len(rets) >= volWindow {
		m := mean(rets[len(rets)-volWindow:])
		set.Values[IndVolatility20] = stddev(rets[len(rets)-volWindow:], m)
	}

	return set, nil
}

// logReturns computes r_t = ln(C_t / C_{t-1}); non-positive closes yield 0.
func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// ema seeds with the SMA of the first period values, then applies the
// standard multiplier 2/(period+1).
func ema(closes []float64, period int) float64 {
	cur := mean(closes[:period])
	mult := 2.0 / float64(period+1)
	for _, c := range closes[period:] {
		cur = c*mult + cur*(1-mult)
	}
	return cur
}

// rsi uses Wilder smoothing over the trailing window.
func rsi(closes []float64, period int) float64 {
	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation around the given mean.
func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum2 := 0.0
	for _, x := range xs {
		d := x - m
		sum2 += d * d
	}
	return math.Sqrt(sum2 / float64(len(xs)-1))
}
