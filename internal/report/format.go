// Package report renders pipeline output, quick-info lookups and batch
// results as markdown, JSON or plain text.
package report

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/seenimoa/finanalyst/internal/errors"
	"github.com/seenimoa/finanalyst/pkg/utils"
)

// Format is an output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
)

// Formats lists the accepted formats.
func Formats() []Format { return []Format{FormatMarkdown, FormatJSON, FormatText} }

// ParseFormat accepts markdown, json or text (case-insensitive). Empty
// selects markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatMarkdown, nil
	case FormatMarkdown, FormatJSON, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (valid: markdown, json, text)", apperrors.ErrInvalidFormat, s)
}

// Extension is the file extension conventionally used for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatText:
		return ".txt"
	}
	return ".md"
}

const defaultHeading = "# Financial Analysis Report"

// FormatResponse prepares model output for display: a top-level heading
// is added when the text has none, and a generation footer is appended.
func FormatResponse(text string, at time.Time) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "#") {
		text = defaultHeading + "\n\n" + text
	}
	return fmt.Sprintf("%s\n\n---\n*Report generated on %s*", text, utils.FormatTimestamp(at))
}

// FormatDuration formats a duration for progress messages.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
