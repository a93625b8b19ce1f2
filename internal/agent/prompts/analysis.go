package prompts

import (
	"fmt"
	"strings"
)

var stockAnalysisSections = []string{
	"🎯 Current Market Position",
	"📊 52-Week Performance Analysis",
	"💰 Valuation Metrics",
	"📈 Technical Indicators",
	"🏆 Analyst Sentiment & Ratings",
	"⚠️ Risk Assessment",
	"🌍 Market Context",
}

func stockAnalysis(symbol, _ string) Prompt {
	return Prompt{
		Instruction: fmt.Sprintf(`Conduct a thorough analysis of %[1]s stock. Call the stock_data_tool first and base every figure on its output.

## 🎯 Current Market Position
- Current price and today's move in dollars and percent
- Market capitalization and company size category
- Trading volume against its recent average

## 📊 52-Week Performance Analysis
- Position inside the 52-week range, as a percentage
- Distance from the 52-week high and low
- Overall trend over the year

## 💰 Valuation Metrics
- P/E ratio against the sector and the broad market
- Whether %[1]s looks cheap, fair or expensive, and why

## 📈 Technical Indicators
- Price against the 50-day and 200-day moving averages (price_history_tool, if available)
- Momentum and volume signals

## 🏆 Analyst Sentiment & Ratings
- Consensus rating and number of covering analysts
- Mean price target and implied upside

## ⚠️ Risk Assessment
- Volatility (beta) and drawdown risk
- Company-specific and sector risks

## 🌍 Market Context
- Sector and industry backdrop
- Relevant recent news from the stock_news_tool, if any

Write at least 300 words. Close with 3-5 key takeaways for %[1]s.`, symbol),
		ExpectedOutput: fmt.Sprintf(`A structured analysis of %s containing:
1. Executive Summary (2-3 sentences)
2. Current Market Data (price, change, volume, market cap)
3. Performance Metrics (52-week range position, trend)
4. Valuation Analysis (P/E, comparison, fair value view)
5. Technical Assessment (moving averages, momentum)
6. Risk Evaluation (volatility, key risks)
7. Key Takeaways (3-5 bullet points)
Length: 300-500 words, markdown headings, figures taken from the tool output.`, symbol),
	}
}

var sectorComparisonSections = []string{
	"Primary Analysis",
	"Comparative Framework",
	"Sector Context",
	"Risk-Adjusted Analysis",
}

// sectorComparison takes a comma separated peer list as context.
func sectorComparison(symbol, peers string) Prompt {
	peers = strings.TrimSpace(peers)
	scope := "its main sector peers"
	if peers != "" {
		scope = peers
	}
	return Prompt{
		Instruction: fmt.Sprintf(`Compare %[1]s against %[2]s.

## Primary Analysis
- Fetch current data for %[1]s and each peer with the stock_data_tool
- Summarize price, market cap, P/E and rating side by side

## Comparative Framework
- Rank the companies on valuation, growth and analyst sentiment
- Present the comparison as a markdown table

## Sector Context
- Where the sector sits in the market cycle
- Which company is best positioned and why

## Risk-Adjusted Analysis
- Compare beta and range position
- Identify the most and least attractive names on a risk-adjusted basis`, symbol, scope),
		ExpectedOutput: fmt.Sprintf(`A sector comparison for %s containing:
1. Company snapshot table
2. Valuation ranking
3. Growth and sentiment ranking
4. Sector outlook
5. Risk-adjusted ranking
6. Relative recommendation for %s`, symbol, symbol),
	}
}

var technicalAnalysisSections = []string{
	"Price Action",
	"Volume",
	"Momentum",
	"Entry/Exit Signals",
	"Risk Management",
}

// technicalAnalysis takes the look-back period as context, 6mo by default.
func technicalAnalysis(symbol, period string) Prompt {
	period = strings.TrimSpace(period)
	if period == "" {
		period = "6mo"
	}
	return Prompt{
		Instruction: fmt.Sprintf(`Perform a technical analysis of %[1]s over the last %[2]s. If the price_history_tool is available, call it with range %[2]s and use its indicator values.

## Price Action
- Primary trend, higher highs and lows, key breakouts
- Support and resistance levels

## Volume
- Volume trend and confirmation of price moves

## Momentum
- RSI and MACD readings, divergences

## Entry/Exit Signals
- Buy and sell zones with concrete price levels

## Risk Management
- Stop-loss level and position sizing guidance`, symbol, period),
		ExpectedOutput: fmt.Sprintf(`A technical analysis of %s over %s containing:
1. Trend direction and strength
2. Support and resistance levels
3. Volume assessment
4. Momentum indicators
5. Entry and exit levels
6. Stop-loss recommendation
7. Overall technical rating`, symbol, period),
	}
}

var riskAssessmentSections = []string{
	"Quantitative Risk",
	"Company-Specific Risk",
	"Market & Sector Risk",
	"Financial Risk",
	"Investment Risk",
}

func riskAssessment(symbol, _ string) Prompt {
	return Prompt{
		Instruction: fmt.Sprintf(`Assess the investment risk of %[1]s using the stock_data_tool output.

## Quantitative Risk
- Beta, 52-week range width, distance from the high

## Company-Specific Risk
- Business concentration, execution, management

## Market & Sector Risk
- Sector cyclicality, regulation, competition

## Financial Risk
- Valuation stretch, leverage, earnings quality

## Investment Risk
- Liquidity, sentiment reversal, event risk`, symbol),
		ExpectedOutput: fmt.Sprintf(`A risk assessment of %s containing:
1. Overall risk score (1-10)
2. Quantitative risk metrics
3. Company-specific risks
4. Market and sector risks
5. Financial risks
6. Mitigation ideas
7. Risk-adjusted recommendation`, symbol),
	}
}
