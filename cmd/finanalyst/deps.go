package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/api"
	"github.com/seenimoa/finanalyst/internal/agent"
	"github.com/seenimoa/finanalyst/internal/config"
	"github.com/seenimoa/finanalyst/internal/datasource"
	"github.com/seenimoa/finanalyst/internal/llm"
	"github.com/seenimoa/finanalyst/internal/pipeline"
)

// depsFactory builds the external collaborators of a command.
type depsFactory interface {
	Market(cfg *config.Config, logger zerolog.Logger) api.MarketData
	News(cfg *config.Config, logger zerolog.Logger) agent.NewsSource
	Provider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (llm.LLMProvider, error)
}

// liveDeps talks to Yahoo Finance and the configured LLM backend.
type liveDeps struct{}

func (liveDeps) Market(cfg *config.Config, logger zerolog.Logger) api.MarketData {
	return datasource.NewYFinanceFromConfig(cfg, logger)
}

func (liveDeps) News(cfg *config.Config, logger zerolog.Logger) agent.NewsSource {
	return datasource.NewNewsFeedFromConfig(cfg, logger)
}

func (liveDeps) Provider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (llm.LLMProvider, error) {
	return llm.NewProvider(ctx, cfg, logger)
}

// crewConfig builds the shared agent configuration.
func (c *cli) crewConfig(ctx context.Context, market api.MarketData) (agent.CrewConfig, error) {
	provider, err := c.deps.Provider(ctx, c.cfg, c.logger)
	if err != nil {
		return agent.CrewConfig{}, err
	}
	return agent.CrewConfig{
		Provider:    provider,
		Metrics:     market,
		History:     market,
		News:        c.deps.News(c.cfg, c.logger),
		ChatOptions: llm.DefaultChatOptions(c.cfg),
		MaxToolIter: c.cfg.LLM.MaxToolIterations,
		Logger:      c.logger,
	}, nil
}

// newPipeline wires a pipeline over live (or injected) collaborators. With
// --verbose every state change is echoed to stderr.
func (c *cli) newPipeline(ctx context.Context, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	crew, err := c.crewConfig(ctx, c.deps.Market(c.cfg, c.logger))
	if err != nil {
		return nil, err
	}
	opts = append([]pipeline.Option{pipeline.WithLogger(c.logger), pipeline.WithClock(c.now)}, opts...)
	if c.opts.verbose && !c.opts.quiet {
		opts = append(opts, pipeline.WithObserver(c.printEvent))
	}
	return pipeline.New(crew, opts...), nil
}

func (c *cli) printEvent(ev pipeline.Event) {
	if ev.Message != "" {
		c.status("   ▸ %s %s: %s", ev.Symbol, ev.State, ev.Message)
		return
	}
	c.status("   ▸ %s %s", ev.Symbol, ev.State)
}

// runContext applies the configured per-run deadline.
func (c *cli) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := c.cfg.LLMTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
