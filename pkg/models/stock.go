package models

import "time"

// OHLCV represents a single candlestick bar of price data.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	AdjClose  float64   `json:"adj_close,omitempty"`
}

// HistoryRange is a Yahoo chart range such as "6mo".
type HistoryRange string

const (
	Range1mo HistoryRange = "1mo"
	Range3mo HistoryRange = "3mo"
	Range6mo HistoryRange = "6mo"
	Range1y  HistoryRange = "1y"
	Range2y  HistoryRange = "2y"
	Range5y  HistoryRange = "5y"
)

// ValidRanges lists the chart ranges the dashboard offers.
var ValidRanges = []HistoryRange{Range1mo, Range3mo, Range6mo, Range1y, Range2y, Range5y}

// IsValid reports whether r is one of ValidRanges.
func (r HistoryRange) IsValid() bool {
	for _, v := range ValidRanges {
		if v == r {
			return true
		}
	}
	return false
}

// NewsArticle represents a news article associated with a company.
type NewsArticle struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
