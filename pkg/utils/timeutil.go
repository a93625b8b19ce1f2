package utils

import (
	"time"
)

// Eastern is the US/Eastern location used by NYSE and NASDAQ.
var Eastern *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: fixed EST if tz database is not available
		Eastern = time.FixedZone("EST", -5*60*60)
	}
}

// MarketOpenTime returns the regular session open (9:30 AM ET) for a date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, Eastern)
}

// MarketCloseTime returns the regular session close (4:00 PM ET) for a date.
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, Eastern)
}

// MarketStatusAt returns the US equity session at t. Exchange holidays are
// not modelled.
func MarketStatusAt(t time.Time) string {
	t = t.In(Eastern)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}
	switch {
	case t.Hour() < 4:
		return "CLOSED"
	case t.Before(MarketOpenTime(t)):
		return "PRE-MARKET"
	case t.Before(MarketCloseTime(t)):
		return "OPEN"
	case t.Hour() < 20:
		return "AFTER-HOURS"
	default:
		return "CLOSED"
	}
}

// MarketStatus returns the current US market status string.
func MarketStatus() string {
	return MarketStatusAt(time.Now())
}

// FormatTimestamp renders t the way reports stamp generation time.
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatDate renders a trading date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return NA
	}
	return t.In(Eastern).Format("2006-01-02")
}
