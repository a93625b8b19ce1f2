// Package technical computes price indicators from daily bars. Every
// function operates on a close series or on []models.OHLCV and returns
// nil when the series is too short for the requested period.
package technical

import (
	"math"

	"github.com/seenimoa/finanalyst/pkg/models"
)

// Default periods.
const (
	RSIPeriod       = 14
	ATRPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerMult   = 2.0
)

// SMA returns the simple moving average; index i holds the mean of the
// window ending at i, and the first period-1 entries are zero.
func SMA(data []float64, period int) []float64 {
	n := len(data)
	if n < period || period <= 0 {
		return nil
	}

	result := make([]float64, n)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		sum += data[i] - data[i-period]
		result[i] = sum / float64(period)
	}
	return result
}

// EMA returns the exponential moving average seeded with the SMA of the
// first period values.
func EMA(data []float64, period int) []float64 {
	n := len(data)
	if n < period || period <= 0 {
		return nil
	}

	ema := make([]float64, n)
	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	ema[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		ema[i] = data[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// RSI returns the Relative Strength Index (0-100) using Wilder's
// smoothing.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	if period <= 0 || n < period+1 {
		return nil
	}

	rsi := make([]float64, n)
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	rsi[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = rsiValue(avgGain, avgLoss)
	}
	return rsi
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

// MACDPoint is one MACD computation.
type MACDPoint struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD returns the MACD line, its signal and histogram. Points before the
// signal line exists are omitted, so the result is shorter than closes.
func MACD(closes []float64, fast, slow, signal int) []MACDPoint {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nil
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	sig := EMA(line, signal)

	out := make([]MACDPoint, 0, len(line)-signal+1)
	for i := signal - 1; i < len(line); i++ {
		out = append(out, MACDPoint{Line: line[i], Signal: sig[i], Histogram: line[i] - sig[i]})
	}
	return out
}

// Bands are Bollinger Bands at one point.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Bollinger returns the bands for the window ending at the last close.
func Bollinger(closes []float64, period int, mult float64) (Bands, bool) {
	if period <= 0 || len(closes) < period {
		return Bands{}, false
	}
	window := closes[len(closes)-period:]
	mean := avg(window)
	sd := stddev(window, mean)
	return Bands{Upper: mean + mult*sd, Middle: mean, Lower: mean - mult*sd}, true
}

// ATR returns the Average True Range using Wilder's smoothing. The first
// period-1 entries are zero.
func ATR(bars []models.OHLCV, period int) []float64 {
	n := len(bars)
	if period <= 0 || n < period {
		return nil
	}

	tr := make([]float64, n)
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < n; i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	atr := make([]float64, n)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		atr[i] = (atr[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}

// --- helper functions ---

func closes(bars []models.OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func avg(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func stddev(data []float64, mean float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, v := range data {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(data)))
}

func last[T any](s []T) (T, bool) {
	if len(s) == 0 {
		var zero T
		return zero, false
	}
	return s[len(s)-1], true
}
