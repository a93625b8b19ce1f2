package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/seenimoa/finanalyst/internal/pipeline"
	"github.com/seenimoa/finanalyst/pkg/models"
)

var funcs = template.FuncMap{
	"rule": func(n int) string { return strings.Repeat("=", n) },
}

var quickInfoMarkdown = template.Must(template.New("quick.md").Funcs(funcs).Parse(`# {{.Symbol}} - {{.Company}}

## Quick Stats
- **Current Price**: {{.CurrentPrice}}
- **Change**: {{.Change}}
- **Market Cap**: {{.MarketCap}}
- **P/E Ratio**: {{.PERatio}}
- **52-Week Range**: {{.WeekLow52}} - {{.WeekHigh52}}
- **Volume**: {{.Volume}}
- **Analyst Rating**: {{.Rating}}
- **Sector**: {{.Sector}}
- **Industry**: {{.Industry}}

*Data as of {{.LatestDate}}*
`))

var quickInfoText = template.Must(template.New("quick.txt").Funcs(funcs).Parse(`{{.Symbol}} - {{.Company}}
{{rule 40}}
Current Price: {{.CurrentPrice}}
Change: {{.Change}}
Market Cap: {{.MarketCap}}
P/E Ratio: {{.PERatio}}
52-Week Range: {{.WeekLow52}} - {{.WeekHigh52}}
Volume: {{.Volume}}
Analyst Rating: {{.Rating}}
Sector: {{.Sector}}
Industry: {{.Industry}}
Data Date: {{.LatestDate}}
`))

// QuickInfo renders a quick-info lookup.
func QuickInfo(info models.QuickInfo, f Format) (string, error) {
	switch f {
	case FormatJSON:
		return marshal(info)
	case FormatText:
		return execute(quickInfoText, info)
	}
	return execute(quickInfoMarkdown, info)
}

// Error renders a failure message in format f.
func Error(msg string, f Format) string {
	if f == FormatJSON {
		out, _ := marshal(map[string]string{"error": msg})
		return out
	}
	return "Error: " + msg
}

type analysisJSON struct {
	RunID      string `json:"run_id"`
	Symbol     string `json:"symbol"`
	ReportType string `json:"report_type"`
	Status     string `json:"status"`
	Analysis   string `json:"analysis,omitempty"`
	Error      string `json:"error,omitempty"`
	Tokens     int    `json:"tokens"`
	Duration   string `json:"duration"`
	Timestamp  string `json:"timestamp"`
}

// Analysis renders one pipeline result. Markdown and text show the report
// verbatim behind FormatResponse; failures render as "Error: ...".
func Analysis(res *pipeline.Result, f Format, at time.Time) (string, error) {
	if f == FormatJSON {
		out := analysisJSON{
			RunID:      res.RunID,
			Symbol:     res.Symbol,
			ReportType: string(res.ReportType),
			Status:     string(pipeline.StatusSuccess),
			Tokens:     res.Tokens,
			Duration:   FormatDuration(res.Duration),
			Timestamp:  at.Format(time.RFC3339),
		}
		if res.OK() {
			out.Analysis = res.Report
		} else {
			out.Status = string(pipeline.StatusError)
			out.Error = res.Error
		}
		return marshal(out)
	}
	if !res.OK() {
		return Error(res.Error, f), nil
	}
	return FormatResponse(res.Report, at), nil
}

type batchJSON struct {
	Status    pipeline.Status `json:"status"`
	Analysis  string          `json:"analysis,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Batch renders batch entries in input order. JSON output is an object
// keyed by symbol; a repeated symbol gets a " (n)" suffix so no entry is
// lost.
func Batch(entries []pipeline.BatchEntry, f Format) (string, error) {
	if f == FormatJSON {
		return batchObject(entries)
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Status == pipeline.StatusSuccess {
			parts = append(parts, fmt.Sprintf("# Analysis for %s\n\n%s\n\n---\n", e.Symbol, e.Analysis))
		} else {
			parts = append(parts, fmt.Sprintf("# Error for %s\n\n%s\n\n---\n", e.Symbol, e.Error))
		}
	}
	return strings.Join(parts, "\n"), nil
}

func batchObject(entries []pipeline.BatchEntry) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := e.Symbol
		seen[e.Symbol]++
		if n := seen[e.Symbol]; n > 1 {
			key = fmt.Sprintf("%s (%d)", e.Symbol, n)
		}
		k, err := json.Marshal(key)
		if err != nil {
			return "", err
		}
		v, err := json.Marshal(batchJSON{
			Status:    e.Status,
			Analysis:  e.Analysis,
			Error:     e.Error,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			return "", err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

func marshal(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
