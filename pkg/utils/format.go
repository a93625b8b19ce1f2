// Package utils provides common utility functions for finanalyst.
package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NA is rendered wherever a value is absent.
const NA = "N/A"

// FormatCurrency formats a dollar amount with a T/B/M/K suffix,
// e.g. 2.85e12 → "$2.85T", 1234 → "$1.23K", 12.5 → "$12.50".
// Non-numeric input falls back to its raw string form; nil gives "N/A".
func FormatCurrency(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return rawString(v)
	}
	return formatCompactUSD(f)
}

// FormatPrice formats a per-share price as "$123.45".
func FormatPrice(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return rawString(v)
	}
	if f < 0 {
		return fmt.Sprintf("-$%.2f", -f)
	}
	return fmt.Sprintf("$%.2f", f)
}

// FormatPercentage formats a percentage value as "12.34%".
func FormatPercentage(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return rawString(v)
	}
	return fmt.Sprintf("%.2f%%", f)
}

// FormatSignedPct formats a change with an explicit sign: "+1.25%".
func FormatSignedPct(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return rawString(v)
	}
	return fmt.Sprintf("%+.2f%%", f)
}

// FormatRatio formats a multiple such as P/E with two decimals.
func FormatRatio(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return rawString(v)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// FormatVolume formats share volume in compact form: 1.5M, 250.0K.
func FormatVolume(v any) string {
	f, ok := toFloat(v)
	if !ok {
		return rawString(v)
	}
	abs := math.Abs(f)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", f/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", f/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", f/1e3)
	default:
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
}

func formatCompactUSD(amount float64) string {
	prefix := "$"
	if amount < 0 {
		prefix = "-$"
		amount = -amount
	}
	switch {
	case amount >= 1e12:
		return fmt.Sprintf("%s%.2fT", prefix, amount/1e12)
	case amount >= 1e9:
		return fmt.Sprintf("%s%.2fB", prefix, amount/1e9)
	case amount >= 1e6:
		return fmt.Sprintf("%s%.2fM", prefix, amount/1e6)
	case amount >= 1e3:
		return fmt.Sprintf("%s%.2fK", prefix, amount/1e3)
	default:
		return fmt.Sprintf("%s%.2f", prefix, amount)
	}
}

// toFloat accepts the numeric shapes that show up in decoded JSON and
// numeric strings. NaN and Inf are treated as not numeric.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(n, ",", "")), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case *float64:
		if n == nil {
			return 0, false
		}
		f = *n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawString(v any) string {
	switch s := v.(type) {
	case nil:
		return NA
	case *float64:
		if s == nil {
			return NA
		}
	case string:
		if strings.TrimSpace(s) == "" {
			return NA
		}
		return s
	}
	out := fmt.Sprint(v)
	if out == "" {
		return NA
	}
	return out
}
