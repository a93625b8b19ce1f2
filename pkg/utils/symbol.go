package utils

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/seenimoa/finanalyst/internal/errors"
)

// MaxSymbolLength is the longest ticker accepted.
const MaxSymbolLength = 10

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,10}$`)

// ExampleSymbols are offered by the dashboard for quick testing.
var ExampleSymbols = []string{
	"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA",
	"META", "NVDA", "NFLX", "ORCL", "CRM",
}

// ValidateSymbol checks ticker syntax: uppercase ASCII letters only,
// 1 to 10 characters. Input is not normalised; "aapl" is rejected.
func ValidateSymbol(symbol string) error {
	if symbolPattern.MatchString(symbol) {
		return nil
	}
	reason := "must be 1-10 uppercase letters"
	switch {
	case symbol == "":
		reason = "must not be empty"
	case len(symbol) > MaxSymbolLength:
		reason = fmt.Sprintf("longer than %d characters", MaxSymbolLength)
	}
	return fmt.Errorf("%w %q: %s", apperrors.ErrInvalidSymbol, symbol, reason)
}

// IsValidSymbol reports whether ValidateSymbol accepts symbol.
func IsValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// ParseSymbolList splits a comma separated list such as "AAPL, MSFT,GOOGL".
// Entries are trimmed but otherwise kept as typed so validation can report
// them; blank entries between commas are preserved as "" to keep positions.
func ParseSymbolList(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
