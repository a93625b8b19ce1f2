package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/seenimoa/finanalyst/internal/errors"
	"github.com/seenimoa/finanalyst/internal/pipeline"
	"github.com/seenimoa/finanalyst/pkg/models"
)

var at = time.Date(2025, 10, 17, 16, 5, 9, 0, time.UTC)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatMarkdown,
		"markdown": FormatMarkdown,
		"JSON":     FormatJSON,
		" text ":   FormatText,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("html"); !errors.Is(err, apperrors.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	if FormatJSON.Extension() != ".json" || FormatMarkdown.Extension() != ".md" {
		t.Error("unexpected extensions")
	}
}

func TestFormatResponse(t *testing.T) {
	got := FormatResponse("Plain analysis text.", at)
	want := "# Financial Analysis Report\n\nPlain analysis text.\n\n---\n*Report generated on 2025-10-17 16:05:09*"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	got = FormatResponse("  # 📊 AAPL Report\nbody\n", at)
	if !strings.HasPrefix(got, "# 📊 AAPL Report\nbody\n\n---\n") {
		t.Errorf("existing heading should be kept: %q", got)
	}
	if strings.Count(got, "# Financial Analysis Report") != 0 {
		t.Error("default heading should not be added")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{90 * time.Minute, "1.5h"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func sampleInfo() models.QuickInfo {
	rec := &models.MetricsRecord{
		Symbol:           "AAPL",
		Company:          models.Some("Apple Inc."),
		Price:            models.Some(189.5),
		MarketCap:        models.Some(2.95e12),
		FiftyTwoWeekHigh: models.Some(199.62),
		FiftyTwoWeekLow:  models.Some(164.08),
		LatestDate:       models.Some(time.Date(2025, 10, 17, 20, 0, 0, 0, time.UTC)),
	}
	return rec.QuickInfo()
}

func TestQuickInfoMarkdown(t *testing.T) {
	out, err := QuickInfo(sampleInfo(), FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"# AAPL - Apple Inc.",
		"## Quick Stats",
		"- **Current Price**: $189.50",
		"- **Market Cap**: $2.95T",
		"- **52-Week Range**: $164.08 - $199.62",
		"- **P/E Ratio**: N/A",
		"- **Sector**: N/A",
		"*Data as of 2025-10-17*",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestQuickInfoText(t *testing.T) {
	out, err := QuickInfo(sampleInfo(), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(out, "\n")
	if lines[0] != "AAPL - Apple Inc." || lines[1] != strings.Repeat("=", 40) {
		t.Errorf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "Data Date: 2025-10-17") {
		t.Errorf("missing date line:\n%s", out)
	}
}

func TestQuickInfoJSON(t *testing.T) {
	out, err := QuickInfo(sampleInfo(), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatal(err)
	}
	if m["symbol"] != "AAPL" || m["52_week_high"] != "$199.62" || m["rating"] != "N/A" {
		t.Errorf("unexpected JSON: %v", m)
	}
}

func TestAnalysis(t *testing.T) {
	ok := &pipeline.Result{RunID: "r1", Symbol: "AAPL", ReportType: "risk_report", State: pipeline.StateDone, Report: "# Risk\nbody", Tokens: 42}
	out, err := Analysis(ok, FormatMarkdown, at)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "# Risk\nbody") || !strings.Contains(out, "*Report generated on 2025-10-17 16:05:09*") {
		t.Errorf("unexpected markdown: %q", out)
	}

	out, _ = Analysis(ok, FormatJSON, at)
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["status"] != "success" || doc["analysis"] != "# Risk\nbody" || doc["symbol"] != "AAPL" {
		t.Errorf("unexpected JSON: %v", doc)
	}

	failed := &pipeline.Result{Symbol: "AAPL", State: pipeline.StateFailed, Error: "Error analyzing AAPL: boom"}
	out, _ = Analysis(failed, FormatText, at)
	if out != "Error: Error analyzing AAPL: boom" {
		t.Errorf("unexpected failure text: %q", out)
	}
	out, _ = Analysis(failed, FormatJSON, at)
	if !strings.Contains(out, `"status": "error"`) || strings.Contains(out, `"analysis"`) {
		t.Errorf("unexpected failure JSON: %s", out)
	}
}

func batchEntries() []pipeline.BatchEntry {
	ts := time.Date(2025, 10, 17, 10, 0, 0, 0, time.UTC)
	return []pipeline.BatchEntry{
		{Symbol: "MSFT", Status: pipeline.StatusSuccess, Analysis: "msft report", Timestamp: ts},
		{Symbol: "ZZZZZZZZZZZ", Status: pipeline.StatusError, Error: "invalid", Timestamp: ts},
		{Symbol: "MSFT", Status: pipeline.StatusSuccess, Analysis: "again", Timestamp: ts},
	}
}

func TestBatchMarkdown(t *testing.T) {
	out, err := Batch(batchEntries(), FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	want := "# Analysis for MSFT\n\nmsft report\n\n---\n\n" +
		"# Error for ZZZZZZZZZZZ\n\ninvalid\n\n---\n\n" +
		"# Analysis for MSFT\n\nagain\n\n---\n"
	if out != want {
		t.Errorf("got:\n%q\nwant:\n%q", out, want)
	}
}

func TestBatchJSONKeepsOrderAndDuplicates(t *testing.T) {
	out, err := Batch(batchEntries(), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]map[string]string
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatal(err)
	}
	if len(m) != 3 {
		t.Fatalf("expected 3 keys, got %d: %s", len(m), out)
	}
	if m["MSFT (2)"]["analysis"] != "again" || m["ZZZZZZZZZZZ"]["status"] != "error" {
		t.Errorf("unexpected JSON: %s", out)
	}
	if m["MSFT"]["timestamp"] != "2025-10-17T10:00:00Z" {
		t.Errorf("unexpected timestamp: %q", m["MSFT"]["timestamp"])
	}
	first := strings.Index(out, `"MSFT"`)
	second := strings.Index(out, `"ZZZZZZZZZZZ"`)
	third := strings.Index(out, `"MSFT (2)"`)
	if !(first < second && second < third) {
		t.Errorf("keys out of input order: %s", out)
	}
}

func TestBatchEmptyJSON(t *testing.T) {
	out, err := Batch(nil, FormatJSON)
	if err != nil || out != "{}" {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestErrorRendering(t *testing.T) {
	if got := Error("bad", FormatMarkdown); got != "Error: bad" {
		t.Errorf("got %q", got)
	}
	if got := Error("bad", FormatJSON); got != "{\n  \"error\": \"bad\"\n}" {
		t.Errorf("got %q", got)
	}
}
