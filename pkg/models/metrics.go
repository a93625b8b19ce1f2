// Package models defines the core data structures used throughout finanalyst.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/seenimoa/finanalyst/pkg/utils"
)

// MetricsRecord is a flat snapshot of market and fundamental data for one
// symbol. Every field except Symbol may be absent; absent fields render as
// "N/A". A record is built once per fetch and not modified afterwards.
type MetricsRecord struct {
	Symbol   string           `json:"symbol"`
	Company  Optional[string] `json:"company"`
	Currency Optional[string] `json:"currency"`
	Exchange Optional[string] `json:"exchange"`

	Price         Optional[float64]   `json:"price"`
	PreviousClose Optional[float64]   `json:"previous_close"`
	Change        Optional[float64]   `json:"change"`
	ChangePercent Optional[float64]   `json:"change_percent"`
	DayHigh       Optional[float64]   `json:"day_high"`
	DayLow        Optional[float64]   `json:"day_low"`
	LatestDate    Optional[time.Time] `json:"latest_date"`

	MarketCap        Optional[float64] `json:"market_cap"`
	ForwardPE        Optional[float64] `json:"forward_pe"`
	TrailingPE       Optional[float64] `json:"trailing_pe"`
	FiftyTwoWeekHigh Optional[float64] `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  Optional[float64] `json:"fifty_two_week_low"`
	Volume           Optional[int64]   `json:"volume"`
	AverageVolume    Optional[int64]   `json:"average_volume"`

	Beta          Optional[float64] `json:"beta"`
	EPS           Optional[float64] `json:"eps"`
	BookValue     Optional[float64] `json:"book_value"`
	PriceToBook   Optional[float64] `json:"price_to_book"`
	DividendYield Optional[float64] `json:"dividend_yield"` // percent

	Rating       Optional[string]  `json:"rating"` // e.g. "buy", "hold"
	RatingMean   Optional[float64] `json:"rating_mean"`
	AnalystCount Optional[int64]   `json:"analyst_count"`
	TargetPrice  Optional[float64] `json:"target_price"`
	Sector       Optional[string]  `json:"sector"`
	Industry     Optional[string]  `json:"industry"`

	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

// PERatio returns forward P/E, falling back to trailing P/E.
func (m *MetricsRecord) PERatio() Optional[float64] {
	return m.ForwardPE.Or(m.TrailingPE)
}

// RangePosition returns where the price sits in the 52-week range, 0-100.
func (m *MetricsRecord) RangePosition() Optional[float64] {
	price, ok1 := m.Price.Get()
	hi, ok2 := m.FiftyTwoWeekHigh.Get()
	lo, ok3 := m.FiftyTwoWeekLow.Get()
	if !ok1 || !ok2 || !ok3 || hi <= lo {
		return None[float64]()
	}
	return Some((price - lo) / (hi - lo) * 100)
}

// coreFields are the fields a complete record is expected to carry.
var coreFields = []string{
	"company", "price", "market_cap", "pe_ratio",
	"52_week_high", "52_week_low", "volume", "rating", "sector", "industry",
}

// Missing lists the core fields that are absent.
func (m *MetricsRecord) Missing() []string {
	present := map[string]bool{
		"company":      m.Company.Valid,
		"price":        m.Price.Valid,
		"market_cap":   m.MarketCap.Valid,
		"pe_ratio":     m.PERatio().Valid,
		"52_week_high": m.FiftyTwoWeekHigh.Valid,
		"52_week_low":  m.FiftyTwoWeekLow.Valid,
		"volume":       m.Volume.Valid,
		"rating":       m.Rating.Valid,
		"sector":       m.Sector.Valid,
		"industry":     m.Industry.Valid,
	}
	var out []string
	for _, f := range coreFields {
		if !present[f] {
			out = append(out, f)
		}
	}
	return out
}

// IsPartial reports whether any core field is absent.
func (m *MetricsRecord) IsPartial() bool {
	return len(m.Missing()) > 0
}

// QuickInfo is the display form of a record used by quick-info mode.
// Every value is already formatted; absent values are "N/A".
type QuickInfo struct {
	Symbol       string `json:"symbol"`
	Company      string `json:"company"`
	CurrentPrice string `json:"current_price"`
	Change       string `json:"change"`
	LatestDate   string `json:"latest_date"`
	MarketCap    string `json:"market_cap"`
	PERatio      string `json:"pe_ratio"`
	WeekHigh52   string `json:"52_week_high"`
	WeekLow52    string `json:"52_week_low"`
	Volume       string `json:"volume"`
	Rating       string `json:"rating"`
	Sector       string `json:"sector"`
	Industry     string `json:"industry"`
}

// QuickInfo renders the record for display.
func (m *MetricsRecord) QuickInfo() QuickInfo {
	change := utils.NA
	if c, ok := m.Change.Get(); ok {
		change = strconv.FormatFloat(c, 'f', 2, 64)
		if pct, ok := m.ChangePercent.Get(); ok {
			change += " (" + utils.FormatSignedPct(pct) + ")"
		}
	}
	return QuickInfo{
		Symbol:       m.Symbol,
		Company:      str(m.Company),
		CurrentPrice: num(m.Price, utils.FormatPrice),
		Change:       change,
		LatestDate:   date(m.LatestDate),
		MarketCap:    num(m.MarketCap, utils.FormatCurrency),
		PERatio:      num(m.PERatio(), utils.FormatRatio),
		WeekHigh52:   num(m.FiftyTwoWeekHigh, utils.FormatPrice),
		WeekLow52:    num(m.FiftyTwoWeekLow, utils.FormatPrice),
		Volume:       intNum(m.Volume, utils.FormatVolume),
		Rating:       rating(m.Rating),
		Sector:       str(m.Sector),
		Industry:     str(m.Industry),
	}
}

// ToolPayload is the record as handed to the analyst model: raw numbers
// where present, "N/A" where absent, plus a few derived figures.
func (m *MetricsRecord) ToolPayload() map[string]any {
	p := map[string]any{
		"symbol":              m.Symbol,
		"company":             orNA(m.Company),
		"latest_price":        orNA(m.Price),
		"latest_date":         date(m.LatestDate),
		"previous_close":      orNA(m.PreviousClose),
		"change":              orNA(m.Change),
		"change_percent":      orNA(m.ChangePercent),
		"day_high":            orNA(m.DayHigh),
		"day_low":             orNA(m.DayLow),
		"52wk_high":           orNA(m.FiftyTwoWeekHigh),
		"52wk_low":            orNA(m.FiftyTwoWeekLow),
		"range_position_pct":  orNA(m.RangePosition()),
		"market_cap":          orNA(m.MarketCap),
		"market_cap_display":  num(m.MarketCap, utils.FormatCurrency),
		"pe_ratio":            orNA(m.PERatio()),
		"forward_pe":          orNA(m.ForwardPE),
		"trailing_pe":         orNA(m.TrailingPE),
		"volume":              orNA(m.Volume),
		"average_volume":      orNA(m.AverageVolume),
		"beta":                orNA(m.Beta),
		"eps":                 orNA(m.EPS),
		"book_value":          orNA(m.BookValue),
		"price_to_book":       orNA(m.PriceToBook),
		"dividend_yield_pct":  orNA(m.DividendYield),
		"rating":              orNA(m.Rating),
		"rating_mean":         orNA(m.RatingMean),
		"analyst_count":       orNA(m.AnalystCount),
		"target_mean_price":   orNA(m.TargetPrice),
		"sector":              orNA(m.Sector),
		"industry":            orNA(m.Industry),
		"currency":            orNA(m.Currency),
		"exchange":            orNA(m.Exchange),
		"missing_fields":      m.Missing(),
		"data_fetched_at_utc": m.FetchedAt.UTC().Format(time.RFC3339),
	}
	return p
}

func orNA[T any](o Optional[T]) any {
	if v, ok := o.Get(); ok {
		return v
	}
	return utils.NA
}

func str(o Optional[string]) string {
	return o.OrElse(utils.NA)
}

func num(o Optional[float64], f func(any) string) string {
	if v, ok := o.Get(); ok {
		return f(v)
	}
	return utils.NA
}

func intNum(o Optional[int64], f func(any) string) string {
	if v, ok := o.Get(); ok {
		return f(v)
	}
	return utils.NA
}

func date(o Optional[time.Time]) string {
	if v, ok := o.Get(); ok {
		return utils.FormatDate(v)
	}
	return utils.NA
}

// rating turns Yahoo's "strong_buy" into "Strong Buy".
func rating(o Optional[string]) string {
	v, ok := o.Get()
	if !ok {
		return utils.NA
	}
	words := strings.Fields(strings.ReplaceAll(v, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
