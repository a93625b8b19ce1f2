package prompts

import (
	"fmt"
	"strings"
)

// analysisBlock embeds the stage-1 text as the writer's only source.
func analysisBlock(symbol, analysis string) string {
	analysis = strings.TrimSpace(analysis)
	if analysis == "" {
		analysis = "(no analysis provided)"
	}
	return fmt.Sprintf("Use only the following analysis of %s as your source:\n\n<analysis>\n%s\n</analysis>\n\n", symbol, analysis)
}

var investmentReportSections = []string{
	"Executive Summary",
	"Key Metrics Dashboard",
	"Financial Performance Analysis",
	"Comprehensive Risk Assessment",
	"Investment Outlook & Scenarios",
	"Investment Recommendation",
	"Appendix: Data Sources & Methodology",
}

func investmentReport(symbol, analysis string) Prompt {
	return Prompt{
		Instruction: analysisBlock(symbol, analysis) + fmt.Sprintf(`Write an institutional-grade investment report for %[1]s with this structure:

# 📊 %[1]s Investment Analysis Report

## Executive Summary
Investment thesis in 3-4 sentences, followed by the recommendation (BUY/HOLD/SELL), a 12-month price target and a confidence level.

## Key Metrics Dashboard
| Metric | Current Value | Analysis | Benchmark |
|--------|---------------|----------|-----------|
| Current Price | | | |
| Market Cap | | | |
| P/E Ratio | | | |
| 52-Week Range | | | |
| Volume | | | |
| Analyst Rating | | | |

## Financial Performance Analysis
Price performance, valuation against peers and the market, and the trend of the business.

## Comprehensive Risk Assessment
Market, company-specific and valuation risks, each rated Low/Medium/High.

## Investment Outlook & Scenarios
- Bull case (30%% probability): drivers and price target
- Base case (50%% probability): drivers and price target
- Bear case (20%% probability): drivers and price target

## Investment Recommendation
Rating, entry range, target, stop-loss, time horizon and suitable investor profile.

## Appendix: Data Sources & Methodology
Where the figures came from and how they were analyzed.

Rules: markdown only, every figure from the analysis, "N/A" for missing data, 800-1500 words.`, symbol),
		ExpectedOutput: fmt.Sprintf(`A professional markdown investment report on %s with all seven sections, a filled metrics table, three weighted scenarios and a clear recommendation. 800-1500 words.`, symbol),
	}
}

var executiveSummarySections = []string{
	"Investment Thesis",
	"Recommendation & Rating",
	"Key Metrics Snapshot",
	"Primary Risks",
	"Time-Sensitive Factors",
	"Portfolio Fit",
}

func executiveSummary(symbol, analysis string) Prompt {
	return Prompt{
		Instruction: analysisBlock(symbol, analysis) + fmt.Sprintf(`Write an executive summary of %[1]s for busy decision makers.

# %[1]s Executive Summary

## Investment Thesis
50-75 words on why %[1]s matters now.

## Recommendation & Rating
BUY/HOLD/SELL, price target, confidence.

## Key Metrics Snapshot
Price, market cap, P/E and 52-week range in one short list.

## Primary Risks
3-4 bullets.

## Time-Sensitive Factors
Upcoming catalysts or dates that change the picture.

## Portfolio Fit
Investor type and suggested position size.

Keep it under 300 words.`, symbol),
		ExpectedOutput: fmt.Sprintf(`A concise markdown executive summary of %s, 200-300 words, with the six sections in order.`, symbol),
	}
}

var technicalReportSections = []string{
	"Technical Summary",
	"Price Action Analysis",
	"Technical Indicators",
	"Trading Signals & Recommendations",
	"Risk Considerations",
}

func technicalReport(symbol, analysis string) Prompt {
	return Prompt{
		Instruction: analysisBlock(symbol, analysis) + fmt.Sprintf(`Write a technical analysis report on %[1]s.

# 📈 %[1]s Technical Analysis Report

## Technical Summary
Overall technical rating and the current trend in two sentences.

## Price Action Analysis
### Trend Analysis
Primary and secondary trend.
### Support & Resistance
Key levels with prices.

## Technical Indicators
### Moving Averages
Price relative to the 20-day and 50-day averages.
### Momentum
RSI and MACD reading.

## Trading Signals & Recommendations
- Short term (1-4 weeks): signal, entry, target, stop
- Medium term (1-6 months): signal, entry, target, stop

## Risk Considerations
What would invalidate the setup.

400-600 words.`, symbol),
		ExpectedOutput: fmt.Sprintf(`A markdown technical report on %s, 400-600 words, with concrete price levels and short and medium term signals.`, symbol),
	}
}

var riskReportSections = []string{
	"Risk Profile Summary",
	"Quantitative Risk Metrics",
	"Specific Risk Categories",
	"Risk Mitigation Strategies",
	"Scenario Analysis",
	"Risk-Adjusted Recommendations",
}

func riskReport(symbol, analysis string) Prompt {
	return Prompt{
		Instruction: analysisBlock(symbol, analysis) + fmt.Sprintf(`Write a risk analysis report on %[1]s.

# ⚠️ %[1]s Risk Analysis Report

## Risk Profile Summary
Overall risk level (Low/Medium/High) and a one-paragraph justification.

## Quantitative Risk Metrics
Beta, volatility, range position and valuation stretch as a table.

## Specific Risk Categories
Market, sector, company, financial and liquidity risks, each rated.

## Risk Mitigation Strategies
Position sizing, stop-loss levels, hedging ideas.

## Scenario Analysis
Stress case, base case and upside case with their price impact.

## Risk-Adjusted Recommendations
Recommendation per investor risk tolerance.

500-700 words.`, symbol),
		ExpectedOutput: fmt.Sprintf(`A markdown risk report on %s, 500-700 words, with rated risk categories and mitigation strategies.`, symbol),
	}
}
