package agent

import (
	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/agent/prompts"
	"github.com/seenimoa/finanalyst/internal/datasource"
	"github.com/seenimoa/finanalyst/internal/llm"
)

// CrewConfig holds what both pipeline agents share.
type CrewConfig struct {
	Provider    llm.LLMProvider
	Metrics     datasource.MetricsSource
	History     datasource.HistorySource // optional
	News        NewsSource               // optional
	ChatOptions *llm.ChatOptions
	MaxToolIter int
	OnTool      llm.ToolObserver
	Logger      zerolog.Logger
}

// NewAnalyst creates the stage-1 agent for symbol with the market data
// tool, plus the price history and news tools when those sources are
// configured.
func NewAnalyst(cfg CrewConfig, symbol string) *Agent {
	tools := []llm.Tool{StockDataTool(cfg.Metrics)}
	if cfg.History != nil {
		tools = append(tools, PriceHistoryTool(cfg.History))
	}
	if cfg.News != nil {
		tools = append(tools, StockNewsTool(cfg.News), ReadArticleTool(cfg.News))
	}
	return New(Config{
		Persona:     prompts.Analyst(symbol),
		Provider:    cfg.Provider,
		Tools:       tools,
		ChatOptions: cfg.ChatOptions,
		MaxToolIter: cfg.MaxToolIter,
		OnTool:      cfg.OnTool,
		Logger:      cfg.Logger,
	})
}

// NewWriter creates the stage-2 agent. It has no tools; the analysis text
// in its prompt is its only source.
func NewWriter(cfg CrewConfig) *Agent {
	return New(Config{
		Persona:     prompts.Writer(),
		Provider:    cfg.Provider,
		ChatOptions: cfg.ChatOptions,
		Logger:      cfg.Logger,
	})
}
