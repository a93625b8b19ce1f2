// Package agent runs a persona-driven LLM conversation with an optional set
// of callable tools. The analyst and writer agents of the pipeline are both
// instances of Agent.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/agent/prompts"
	apperrors "github.com/seenimoa/finanalyst/internal/errors"
	"github.com/seenimoa/finanalyst/internal/llm"
	"github.com/seenimoa/finanalyst/internal/logging"
)

// Result holds the output of one agent run.
type Result struct {
	AgentName string        `json:"agent_name"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls int           `json:"tool_calls"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
	Messages  []llm.Message `json:"-"`
}

// Agent pairs a persona with a provider and a tool registry.
type Agent struct {
	persona     prompts.Persona
	provider    llm.LLMProvider
	registry    *llm.ToolRegistry
	opts        *llm.ChatOptions
	maxToolIter int
	onTool      llm.ToolObserver
	logger      zerolog.Logger
}

// Config configures an Agent.
type Config struct {
	Persona     prompts.Persona
	Provider    llm.LLMProvider
	Tools       []llm.Tool
	ChatOptions *llm.ChatOptions
	MaxToolIter int
	OnTool      llm.ToolObserver
	Logger      zerolog.Logger
}

// New creates an Agent. An agent without tools never offers any to the model.
func New(cfg Config) *Agent {
	if cfg.MaxToolIter <= 0 {
		cfg.MaxToolIter = 5
	}
	var reg *llm.ToolRegistry
	if len(cfg.Tools) > 0 {
		reg = llm.NewToolRegistry()
		for _, t := range cfg.Tools {
			reg.Register(t)
		}
	}
	return &Agent{
		persona:     cfg.Persona,
		provider:    cfg.Provider,
		registry:    reg,
		opts:        cfg.ChatOptions,
		maxToolIter: cfg.MaxToolIter,
		onTool:      cfg.OnTool,
		logger:      logging.WithAgent(cfg.Logger, cfg.Persona.Name),
	}
}

// Name returns the agent's identifier.
func (a *Agent) Name() string { return a.persona.Name }

// Role returns the persona role.
func (a *Agent) Role() string { return a.persona.Role }

// Persona returns the agent's persona.
func (a *Agent) Persona() prompts.Persona { return a.persona }

// ToolNames lists the tools offered to the model.
func (a *Agent) ToolNames() []string {
	if a.registry == nil {
		return nil
	}
	return a.registry.Names()
}

// Run sends the persona system prompt and the rendered task to the model,
// executing tool calls until it answers. Blank output is an error.
func (a *Agent) Run(ctx context.Context, task prompts.Prompt) (*Result, error) {
	start := time.Now()
	messages := []llm.Message{
		llm.SystemMessage(a.persona.SystemPrompt()),
		llm.UserMessage(taskMessage(task)),
	}

	resp, msgs, err := llm.RunToolLoop(ctx, a.provider, a.registry, messages, llm.LoopConfig{
		MaxIterations: a.maxToolIter,
		Options:       a.opts,
		OnTool:        a.onTool,
	})
	result := &Result{
		AgentName: a.persona.Name,
		Role:      a.persona.Role,
		ToolCalls: countToolCalls(msgs),
		Messages:  msgs,
	}
	if err != nil {
		result.Duration = time.Since(start)
		a.logger.Warn().Err(err).Dur("duration", result.Duration).Msg("agent run failed")
		return result, apperrors.NewAgentError(a.persona.Name, "run", err)
	}

	result.Content = strings.TrimSpace(resp.Content)
	result.Tokens = resp.Usage.TotalTokens
	result.Duration = time.Since(start)
	if result.Content == "" {
		return result, apperrors.NewAgentError(a.persona.Name, "run", apperrors.ErrEmptyOutput)
	}

	a.logger.Debug().
		Int("tool_calls", result.ToolCalls).
		Int("tokens", result.Tokens).
		Dur("duration", result.Duration).
		Msg("agent run complete")
	return result, nil
}

func taskMessage(p prompts.Prompt) string {
	if p.ExpectedOutput == "" {
		return p.Instruction
	}
	return fmt.Sprintf("%s\n\n## Expected Output\n%s", p.Instruction, p.ExpectedOutput)
}

func countToolCalls(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.ToolCalls)
	}
	return n
}
