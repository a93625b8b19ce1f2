// Package prompts holds the instruction templates for the analysis and
// report stages, plus the personas of the two agents that run them.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/seenimoa/finanalyst/internal/errors"
)

// Version is stamped into report metadata.
const Version = "1.0.0"

// Kind selects a template.
type Kind string

// Analysis-stage kinds.
const (
	KindStockAnalysis     Kind = "stock_analysis"
	KindSectorComparison  Kind = "sector_comparison"
	KindTechnicalAnalysis Kind = "technical_analysis"
	KindRiskAssessment    Kind = "risk_assessment"
)

// ReportType selects the stage-2 template. The set is closed.
type ReportType string

const (
	InvestmentReport ReportType = "investment_report"
	ExecutiveSummary ReportType = "executive_summary"
	TechnicalReport  ReportType = "technical_report"
	RiskReport       ReportType = "risk_report"
)

// DefaultReportType is used when the caller does not pick one.
const DefaultReportType = InvestmentReport

// ErrUnknownKind is returned by Render for a kind with no template.
var ErrUnknownKind = apperrors.New("unknown prompt kind")

// ReportTypes lists every report type in display order.
func ReportTypes() []ReportType {
	return []ReportType{InvestmentReport, ExecutiveSummary, TechnicalReport, RiskReport}
}

// Kind returns the template kind for a report type.
func (rt ReportType) Kind() Kind { return Kind(rt) }

// Valid reports whether rt is one of the four known report types.
func (rt ReportType) Valid() bool {
	_, ok := reportInfo[rt]
	return ok
}

// Description is a one-line human description of rt.
func (rt ReportType) Description() string {
	return reportInfo[rt].description
}

// ParseReportType accepts exactly one of the known report type tags.
func ParseReportType(s string) (ReportType, error) {
	rt := ReportType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("%w: %q (valid: %s)", apperrors.ErrUnknownReportType, s, strings.Join(reportTypeNames(), ", "))
	}
	return rt, nil
}

func reportTypeNames() []string {
	var names []string
	for _, rt := range ReportTypes() {
		names = append(names, string(rt))
	}
	return names
}

// DefaultAnalysisKind is the stage-1 template used when none is chosen.
const DefaultAnalysisKind = KindStockAnalysis

// AnalysisKinds lists the stage-1 templates in display order.
func AnalysisKinds() []Kind {
	return []Kind{KindStockAnalysis, KindSectorComparison, KindTechnicalAnalysis, KindRiskAssessment}
}

// ParseAnalysisKind accepts one of AnalysisKinds. The empty string selects
// DefaultAnalysisKind.
func ParseAnalysisKind(s string) (Kind, error) {
	if s == "" {
		return DefaultAnalysisKind, nil
	}
	for _, k := range AnalysisKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	names := make([]string, 0, 4)
	for _, k := range AnalysisKinds() {
		names = append(names, string(k))
	}
	return "", fmt.Errorf("%w: analysis %q (valid: %s)", ErrUnknownKind, s, strings.Join(names, ", "))
}

// Prompt is a rendered template: what to do and what the result must look like.
type Prompt struct {
	Instruction    string `json:"instruction"`
	ExpectedOutput string `json:"expected_output"`
}

type template struct {
	sections []string
	render   func(symbol, context string) Prompt
}

var templates = map[Kind]template{
	KindStockAnalysis:     {sections: stockAnalysisSections, render: stockAnalysis},
	KindSectorComparison:  {sections: sectorComparisonSections, render: sectorComparison},
	KindTechnicalAnalysis: {sections: technicalAnalysisSections, render: technicalAnalysis},
	KindRiskAssessment:    {sections: riskAssessmentSections, render: riskAssessment},

	InvestmentReport.Kind(): {sections: investmentReportSections, render: investmentReport},
	ExecutiveSummary.Kind(): {sections: executiveSummarySections, render: executiveSummary},
	TechnicalReport.Kind():  {sections: technicalReportSections, render: technicalReport},
	RiskReport.Kind():       {sections: riskReportSections, render: riskReport},
}

// Render builds the prompt for kind. context is free text: the analysis
// text for report kinds, an optional comparison list or period for the
// extra analysis kinds, ignored by the stock analysis template.
func Render(kind Kind, symbol, context string) (Prompt, error) {
	t, ok := templates[kind]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t.render(symbol, context), nil
}

// Sections returns the fixed section list of kind, or nil when unknown.
func Sections(kind Kind) []string {
	t, ok := templates[kind]
	if !ok {
		return nil
	}
	out := make([]string, len(t.sections))
	copy(out, t.sections)
	return out
}

// Kinds lists all template kinds, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(templates))
	for k := range templates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type reportMeta struct {
	description string
	length      string
}

var reportInfo = map[ReportType]reportMeta{
	InvestmentReport: {"Comprehensive investment analysis with recommendation and scenarios", "800-1500 words"},
	ExecutiveSummary: {"Concise summary for decision makers", "200-300 words"},
	TechnicalReport:  {"Price action, indicators and trading signals", "400-600 words"},
	RiskReport:       {"Risk profile, scenarios and mitigation strategies", "500-700 words"},
}

// Metadata describes a report before it is generated.
type Metadata struct {
	Symbol          string     `json:"symbol"`
	ReportType      ReportType `json:"report_type"`
	EstimatedLength string     `json:"estimated_length"`
	Format          string     `json:"format"`
	Version         string     `json:"template_version"`
	Sections        []string   `json:"sections"`
}

// ReportMetadata returns the metadata for a report of type rt on symbol.
func ReportMetadata(symbol string, rt ReportType) Metadata {
	length := "400-800 words"
	if m, ok := reportInfo[rt]; ok {
		length = m.length
	}
	return Metadata{
		Symbol:          symbol,
		ReportType:      rt,
		EstimatedLength: length,
		Format:          "markdown",
		Version:         Version,
		Sections:        Sections(rt.Kind()),
	}
}
