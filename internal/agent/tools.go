package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seenimoa/finanalyst/internal/analysis/technical"
	"github.com/seenimoa/finanalyst/internal/datasource"
	"github.com/seenimoa/finanalyst/internal/llm"
	"github.com/seenimoa/finanalyst/pkg/models"
	"github.com/seenimoa/finanalyst/pkg/utils"
)

// Tool names offered to the analyst.
const (
	ToolStockData    = "stock_data_tool"
	ToolStockNews    = "stock_news_tool"
	ToolReadArticle  = "read_article_tool"
	ToolPriceHistory = "price_history_tool"
)

// NewsSource supplies headlines and article text.
type NewsSource interface {
	Headlines(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
	Article(ctx context.Context, link string) (*models.NewsArticle, error)
}

const defaultHeadlines = 5

type symbolArgs struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit,omitempty"`
	Range  string `json:"range,omitempty"`
}

func parseSymbolArgs(raw json.RawMessage) (symbolArgs, error) {
	var args symbolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := utils.ValidateSymbol(args.Symbol); err != nil {
		return args, err
	}
	return args, nil
}

// StockDataTool exposes the metrics source to the model. Fetch failures are
// returned as the tool result so the model can report the gap.
func StockDataTool(src datasource.MetricsSource) llm.Tool {
	return llm.Tool{
		Name:        ToolStockData,
		Description: "Fetch real-time market data for a stock: price, change, market cap, P/E, 52-week range, volume, beta, analyst rating, target price, sector and industry.",
		Parameters: llm.ObjectSchema("Stock data parameters",
			map[string]*llm.JSONSchema{
				"symbol": llm.StringProp("Ticker symbol in uppercase, e.g. AAPL"),
			},
			"symbol",
		),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := parseSymbolArgs(raw)
			if err != nil {
				return "", err
			}
			rec, err := src.Fetch(ctx, args.Symbol)
			if err != nil {
				return "", err
			}
			out, err := json.MarshalIndent(rec.ToolPayload(), "", "  ")
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

type headline struct {
	Title     string `json:"title"`
	Source    string `json:"source"`
	Published string `json:"published"`
	Summary   string `json:"summary,omitempty"`
	URL       string `json:"url"`
}

// StockNewsTool returns recent headlines for a symbol.
func StockNewsTool(news NewsSource) llm.Tool {
	return llm.Tool{
		Name:        ToolStockNews,
		Description: "Get recent news headlines for a stock, newest first.",
		Parameters: llm.ObjectSchema("News parameters",
			map[string]*llm.JSONSchema{
				"symbol": llm.StringProp("Ticker symbol in uppercase, e.g. AAPL"),
				"limit":  llm.IntProp("Maximum number of headlines (default 5)"),
			},
			"symbol",
		),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := parseSymbolArgs(raw)
			if err != nil {
				return "", err
			}
			limit := args.Limit
			if limit <= 0 || limit > 20 {
				limit = defaultHeadlines
			}
			articles, err := news.Headlines(ctx, args.Symbol, limit)
			if err != nil {
				return "", err
			}
			if len(articles) == 0 {
				return fmt.Sprintf("No recent news found for %s.", args.Symbol), nil
			}
			items := make([]headline, 0, len(articles))
			for _, a := range articles {
				h := headline{Title: a.Title, Source: a.Source, Summary: a.Summary, URL: a.URL, Published: utils.NA}
				if !a.PublishedAt.IsZero() {
					h.Published = utils.FormatDate(a.PublishedAt)
				}
				items = append(items, h)
			}
			out, err := json.MarshalIndent(items, "", "  ")
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

// ReadArticleTool returns the readable text of a news article.
func ReadArticleTool(news NewsSource) llm.Tool {
	return llm.Tool{
		Name:        ToolReadArticle,
		Description: "Read the full text of a news article returned by stock_news_tool.",
		Parameters: llm.ObjectSchema("Article parameters",
			map[string]*llm.JSONSchema{
				"url": llm.StringProp("Article URL"),
			},
			"url",
		),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			a, err := news.Article(ctx, args.URL)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("# %s\n\n%s", a.Title, a.Content), nil
		},
	}
}

// PriceHistoryTool summarises daily price history into trend, momentum and
// volatility indicators.
func PriceHistoryTool(src datasource.HistorySource) llm.Tool {
	ranges := make([]string, 0, len(models.ValidRanges))
	for _, r := range models.ValidRanges {
		ranges = append(ranges, string(r))
	}
	return llm.Tool{
		Name:        ToolPriceHistory,
		Description: "Compute technical indicators from daily price history: moving averages, RSI, MACD, Bollinger Bands, ATR, trailing returns, volatility and trend.",
		Parameters: llm.ObjectSchema("Price history parameters",
			map[string]*llm.JSONSchema{
				"symbol": llm.StringProp("Ticker symbol in uppercase, e.g. AAPL"),
				"range":  llm.EnumProp("History window (default 1y)", ranges...),
			},
			"symbol",
		),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := parseSymbolArgs(raw)
			if err != nil {
				return "", err
			}
			r := models.HistoryRange(args.Range)
			if r == "" {
				r = models.Range1y
			}
			if !r.IsValid() {
				return "", fmt.Errorf("invalid range %q", args.Range)
			}
			bars, err := src.History(ctx, args.Symbol, r)
			if err != nil {
				return "", err
			}
			snap, err := technical.Summarize(args.Symbol, r, bars)
			if err != nil {
				return fmt.Sprintf("Not enough price history for %s.", args.Symbol), nil
			}
			out, err := json.MarshalIndent(snap.ToolPayload(), "", "  ")
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
