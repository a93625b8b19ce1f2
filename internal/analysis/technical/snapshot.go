package technical

import (
	"errors"
	"math"
	"time"

	"github.com/seenimoa/finanalyst/pkg/models"
	"github.com/seenimoa/finanalyst/pkg/utils"
)

// ErrInsufficientData is returned when fewer than two bars are given.
var ErrInsufficientData = errors.New("technical: need at least two bars")

// Bars per calendar period, in trading days.
const (
	barsPerMonth   = 21
	barsPerQuarter = 63
)

// Trend labels.
const (
	TrendUp       = "uptrend"
	TrendDown     = "downtrend"
	TrendSideways = "sideways"
)

// Snapshot summarises a price history at its last bar. Indicators whose
// period exceeds the history are absent.
type Snapshot struct {
	Symbol     string              `json:"symbol"`
	Range      models.HistoryRange `json:"range"`
	Bars       int                 `json:"bars"`
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	LastClose  float64             `json:"last_close"`
	PeriodHigh float64             `json:"period_high"`
	PeriodLow  float64             `json:"period_low"`

	SMA20  models.Optional[float64]   `json:"sma_20"`
	SMA50  models.Optional[float64]   `json:"sma_50"`
	SMA200 models.Optional[float64]   `json:"sma_200"`
	EMA12  models.Optional[float64]   `json:"ema_12"`
	EMA26  models.Optional[float64]   `json:"ema_26"`
	RSI14  models.Optional[float64]   `json:"rsi_14"`
	MACD   models.Optional[MACDPoint] `json:"macd"`
	Bands  models.Optional[Bands]     `json:"bollinger"`
	ATR14  models.Optional[float64]   `json:"atr_14"`

	Return1M     models.Optional[float64] `json:"return_1m_pct"`
	Return3M     models.Optional[float64] `json:"return_3m_pct"`
	ReturnPeriod float64                  `json:"return_period_pct"`
	Volatility   models.Optional[float64] `json:"annualized_volatility_pct"`

	Trend    string `json:"trend"`
	Momentum string `json:"momentum"`
}

// Summarize computes a Snapshot from bars in chronological order.
func Summarize(symbol string, r models.HistoryRange, bars []models.OHLCV) (*Snapshot, error) {
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}
	c := closes(bars)
	first, lastBar := bars[0], bars[len(bars)-1]

	s := &Snapshot{
		Symbol:       symbol,
		Range:        r,
		Bars:         len(bars),
		From:         first.Timestamp,
		To:           lastBar.Timestamp,
		LastClose:    lastBar.Close,
		PeriodHigh:   math.Inf(-1),
		PeriodLow:    math.Inf(1),
		ReturnPeriod: pctChange(first.Close, lastBar.Close),
	}
	for _, b := range bars {
		hi, lo := b.High, b.Low
		if hi == 0 {
			hi = b.Close
		}
		if lo == 0 {
			lo = b.Close
		}
		s.PeriodHigh = math.Max(s.PeriodHigh, hi)
		s.PeriodLow = math.Min(s.PeriodLow, lo)
	}

	s.SMA20 = latest(SMA(c, 20))
	s.SMA50 = latest(SMA(c, 50))
	s.SMA200 = latest(SMA(c, 200))
	s.EMA12 = latest(EMA(c, 12))
	s.EMA26 = latest(EMA(c, 26))
	s.RSI14 = latest(RSI(c, RSIPeriod))
	s.ATR14 = latest(ATR(bars, ATRPeriod))
	if m, ok := last(MACD(c, MACDFast, MACDSlow, MACDSignal)); ok {
		s.MACD = models.Some(m)
	}
	if b, ok := Bollinger(c, BollingerPeriod, BollingerMult); ok {
		s.Bands = models.Some(b)
	}
	s.Return1M = trailingReturn(c, barsPerMonth)
	s.Return3M = trailingReturn(c, barsPerQuarter)
	s.Volatility = annualizedVolatility(c)
	s.Trend = trend(s)
	s.Momentum = momentum(s.RSI14)
	return s, nil
}

// ToolPayload is the snapshot as handed to the analyst model: numbers
// rounded to two decimals and "N/A" for absent indicators.
func (s *Snapshot) ToolPayload() map[string]any {
	p := map[string]any{
		"symbol":                    s.Symbol,
		"range":                     string(s.Range),
		"bars":                      s.Bars,
		"from":                      utils.FormatDate(s.From),
		"to":                        utils.FormatDate(s.To),
		"last_close":                round2(s.LastClose),
		"period_high":               round2(s.PeriodHigh),
		"period_low":                round2(s.PeriodLow),
		"return_period_pct":         round2(s.ReturnPeriod),
		"return_1m_pct":             opt(s.Return1M),
		"return_3m_pct":             opt(s.Return3M),
		"annualized_volatility_pct": opt(s.Volatility),
		"sma_20":                    opt(s.SMA20),
		"sma_50":                    opt(s.SMA50),
		"sma_200":                   opt(s.SMA200),
		"ema_12":                    opt(s.EMA12),
		"ema_26":                    opt(s.EMA26),
		"rsi_14":                    opt(s.RSI14),
		"atr_14":                    opt(s.ATR14),
		"trend":                     s.Trend,
		"momentum":                  s.Momentum,
		"macd":                      utils.NA,
		"bollinger":                 utils.NA,
	}
	if m, ok := s.MACD.Get(); ok {
		p["macd"] = map[string]float64{"line": round2(m.Line), "signal": round2(m.Signal), "histogram": round2(m.Histogram)}
	}
	if b, ok := s.Bands.Get(); ok {
		p["bollinger"] = map[string]float64{"upper": round2(b.Upper), "middle": round2(b.Middle), "lower": round2(b.Lower)}
	}
	return p
}

func latest(series []float64) models.Optional[float64] {
	if v, ok := last(series); ok {
		return models.Some(v)
	}
	return models.None[float64]()
}

func trailingReturn(c []float64, bars int) models.Optional[float64] {
	if len(c) <= bars {
		return models.None[float64]()
	}
	return models.Some(pctChange(c[len(c)-1-bars], c[len(c)-1]))
}

// annualizedVolatility is the standard deviation of daily returns scaled
// by sqrt(252), in percent.
func annualizedVolatility(c []float64) models.Optional[float64] {
	if len(c) < barsPerMonth {
		return models.None[float64]()
	}
	rets := make([]float64, 0, len(c)-1)
	for i := 1; i < len(c); i++ {
		if c[i-1] != 0 {
			rets = append(rets, c[i]/c[i-1]-1)
		}
	}
	if len(rets) < 2 {
		return models.None[float64]()
	}
	return models.Some(stddev(rets, avg(rets)) * math.Sqrt(252) * 100)
}

func trend(s *Snapshot) string {
	price := s.LastClose
	fast, okFast := s.SMA20.Get()
	slow, okSlow := s.SMA50.Get()
	if long, ok := s.SMA200.Get(); ok && okSlow {
		fast, slow = slow, long
		okFast = true
	}
	if !okFast || !okSlow {
		switch {
		case s.ReturnPeriod > 5:
			return TrendUp
		case s.ReturnPeriod < -5:
			return TrendDown
		}
		return TrendSideways
	}
	switch {
	case price > fast && fast > slow:
		return TrendUp
	case price < fast && fast < slow:
		return TrendDown
	}
	return TrendSideways
}

func momentum(rsi models.Optional[float64]) string {
	v, ok := rsi.Get()
	switch {
	case !ok:
		return utils.NA
	case v >= 70:
		return "overbought"
	case v <= 30:
		return "oversold"
	}
	return "neutral"
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func opt(o models.Optional[float64]) any {
	if v, ok := o.Get(); ok {
		return round2(v)
	}
	return utils.NA
}
