package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// EinoProvider adapts a cloudwego/eino tool-calling ChatModel to LLMProvider.
type EinoProvider struct {
	cm      model.ToolCallingChatModel
	model   string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// EinoConfig configures NewEinoProvider.
type EinoConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            zerolog.Logger
}

// NewEinoProvider builds an eino OpenAI-compatible chat model and wraps it.
func NewEinoProvider(ctx context.Context, cfg EinoConfig) (*EinoProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cm, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("eino: init chat model: %w", err)
	}
	p := NewEinoProviderFromModel(cm, cfg.Model)
	p.logger = cfg.Logger
	if cfg.RequestsPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), 1)
	}
	return p, nil
}

// NewEinoProviderFromModel wraps an existing chat model.
func NewEinoProviderFromModel(cm model.ToolCallingChatModel, modelName string) *EinoProvider {
	return &EinoProvider{cm: cm, model: modelName, logger: zerolog.Nop()}
}

func (p *EinoProvider) Name() string  { return ProviderEino }
func (p *EinoProvider) Model() string { return p.model }

// Ping sends a one-token request.
func (p *EinoProvider) Ping(ctx context.Context) error {
	_, err := p.cm.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	return nil
}

// Chat converts the conversation to eino messages and calls Generate.
func (p *EinoProvider) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("eino: limiter wait: %w", err)
		}
	}
	start := time.Now()

	cm := p.cm
	if len(tools) > 0 {
		bound, err := p.cm.WithTools(toToolInfos(tools))
		if err != nil {
			return nil, fmt.Errorf("eino: bind tools: %w", err)
		}
		cm = bound
	}

	out, err := cm.Generate(ctx, toEinoMessages(messages), einoOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	if out == nil {
		return nil, ErrEmptyResponse
	}

	resp := &Response{
		Content:      out.Content,
		FinishReason: FinishStop,
		Model:        p.model,
		Provider:     ProviderEino,
		Latency:      time.Since(start),
	}
	if opts != nil && opts.Model != "" {
		resp.Model = opts.Model
	}
	for _, tc := range out.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: rawArgs(tc.Function.Arguments),
		})
	}
	if meta := out.ResponseMeta; meta != nil {
		if meta.FinishReason != "" {
			resp.FinishReason = mapFinishReason(meta.FinishReason)
		}
		if u := meta.Usage; u != nil {
			resp.Usage = Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolCalls
	}

	p.logger.Debug().
		Str("model", resp.Model).
		Int("tool_calls", len(resp.ToolCalls)).
		Int("tokens", resp.Usage.TotalTokens).
		Dur("latency", resp.Latency).
		Msg("eino generate")
	return resp, nil
}

func einoOptions(opts *ChatOptions) []model.Option {
	if opts == nil {
		return nil
	}
	var out []model.Option
	if opts.Model != "" {
		out = append(out, model.WithModel(opts.Model))
	}
	if opts.Temperature > 0 {
		out = append(out, model.WithTemperature(float32(opts.Temperature)))
	}
	if opts.MaxTokens > 0 {
		out = append(out, model.WithMaxTokens(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		out = append(out, model.WithTopP(float32(opts.TopP)))
	}
	if len(opts.Stop) > 0 {
		out = append(out, model.WithStop(opts.Stop))
	}
	return out
}

func toEinoMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		msg := &schema.Message{
			Role:       schema.RoleType(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toToolInfos(tools []Tool) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info := &schema.ToolInfo{Name: t.Name, Desc: t.Description}
		if t.Parameters != nil && len(t.Parameters.Properties) > 0 {
			info.ParamsOneOf = schema.NewParamsOneOfByParams(toParams(t.Parameters))
		}
		out = append(out, info)
	}
	return out
}

func toParams(s *JSONSchema) map[string]*schema.ParameterInfo {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}
	params := make(map[string]*schema.ParameterInfo, len(s.Properties))
	for name, prop := range s.Properties {
		params[name] = &schema.ParameterInfo{
			Type:     dataType(prop.Type),
			Desc:     prop.Description,
			Enum:     prop.Enum,
			Required: required[name],
		}
	}
	return params
}

func dataType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "object":
		return schema.Object
	case "array":
		return schema.Array
	default:
		return schema.String
	}
}
