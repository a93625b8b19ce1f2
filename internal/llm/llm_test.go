package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/config"
)

// ════════════════════════════════════════════════════════════════════
// provider.go: Types & Helpers
// ════════════════════════════════════════════════════════════════════

func TestMessageConstructors(t *testing.T) {
	sys := SystemMessage("You are an analyst.")
	if sys.Role != RoleSystem || sys.Content != "You are an analyst." {
		t.Fatalf("SystemMessage: got %+v", sys)
	}

	user := UserMessage("hello")
	if user.Role != RoleUser || user.Content != "hello" {
		t.Fatalf("UserMessage: got %+v", user)
	}

	tool := ToolResultMessage("call_1", "stock_data_tool", `{"latest_price":190}`)
	if tool.Role != RoleTool || tool.ToolCallID != "call_1" || tool.Name != "stock_data_tool" {
		t.Fatalf("ToolResultMessage: got %+v", tool)
	}

	tc := AssistantToolCallMessage("checking", []ToolCall{{ID: "c1", Name: "fn"}})
	if tc.Role != RoleAssistant || len(tc.ToolCalls) != 1 || tc.Content != "checking" {
		t.Fatalf("AssistantToolCallMessage: got %+v", tc)
	}
}

func TestResponseString(t *testing.T) {
	r := &Response{
		Provider: "openai", Model: "Llama-4",
		Content: "short answer",
		Usage:   Usage{TotalTokens: 50},
		Latency: 100 * time.Millisecond,
	}
	if s := r.String(); !strings.Contains(s, "openai/Llama-4") || !strings.Contains(s, "50 tokens") {
		t.Fatalf("unexpected String(): %s", s)
	}

	r.ToolCalls = []ToolCall{{ID: "1", Name: "fn"}}
	if s := r.String(); !strings.Contains(s, "1 tool call") {
		t.Fatalf("unexpected String() with tools: %s", s)
	}

	r.ToolCalls = nil
	r.Content = strings.Repeat("x", 200)
	if s := r.String(); !strings.Contains(s, "...") {
		t.Fatalf("long content should be truncated: %s", s)
	}
}

func TestUsageAdd(t *testing.T) {
	var u Usage
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	u.Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	if u.PromptTokens != 11 || u.CompletionTokens != 7 || u.TotalTokens != 18 {
		t.Fatalf("Add: got %+v", u)
	}
}

// ════════════════════════════════════════════════════════════════════
// tools.go: Registry
// ════════════════════════════════════════════════════════════════════

func TestToolRegistryOrder(t *testing.T) {
	reg := NewToolRegistry()
	for _, name := range []string{"stock_data_tool", "stock_news_tool", "alpha"} {
		reg.Register(Tool{Name: name})
	}
	reg.Register(Tool{Name: "stock_data_tool", Description: "replaced"})

	names := reg.Names()
	want := []string{"stock_data_tool", "stock_news_tool", "alpha"}
	if len(names) != len(want) {
		t.Fatalf("Names: got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names[%d]: got %q want %q", i, names[i], want[i])
		}
	}
	if reg.List()[0].Description != "replaced" {
		t.Fatal("Register should replace an existing tool in place")
	}
}

func TestToolRegistryExecute(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return string(args), nil
		},
	})
	reg.Register(Tool{Name: "nohandler"})

	out, err := reg.Execute(context.Background(), ToolCall{Name: "echo", Arguments: json.RawMessage(`{"a":1}`)})
	if err != nil || out != `{"a":1}` {
		t.Fatalf("Execute: got %q, %v", out, err)
	}
	if _, err := reg.Execute(context.Background(), ToolCall{Name: "missing"}); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	if _, err := reg.Execute(context.Background(), ToolCall{Name: "nohandler"}); err == nil {
		t.Fatal("expected error for tool without handler")
	}
}

func TestToolRegistryExecuteAllSequential(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	reg := NewToolRegistry()
	reg.Register(Tool{
		Name: "record",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, string(args))
			return "ok", nil
		},
	})
	calls := []ToolCall{
		{ID: "1", Name: "record", Arguments: json.RawMessage(`"a"`)},
		{ID: "2", Name: "record", Arguments: json.RawMessage(`"b"`)},
		{ID: "3", Name: "missing"},
	}
	results := reg.ExecuteAll(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if order[0] != `"a"` || order[1] != `"b"` {
		t.Fatalf("calls ran out of order: %v", order)
	}
	if results[2].Err == nil {
		t.Fatal("missing tool should produce an error result")
	}
	msg := results[2].ToMessage()
	if msg.Role != RoleTool || !strings.Contains(msg.Content, "Error executing tool missing") {
		t.Fatalf("ToMessage: got %+v", msg)
	}
}

// ════════════════════════════════════════════════════════════════════
// tools.go: RunToolLoop
// ════════════════════════════════════════════════════════════════════

// mockProvider implements LLMProvider for loop tests.
type mockProvider struct {
	mu       sync.Mutex
	calls    int
	chatFunc func(call int, messages []Message, tools []Tool) (*Response, error)
}

func (m *mockProvider) Name() string                   { return "mock" }
func (m *mockProvider) Model() string                  { return "mock-model" }
func (m *mockProvider) Ping(ctx context.Context) error { return nil }
func (m *mockProvider) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	return m.chatFunc(n, messages, tools)
}

func TestRunToolLoop(t *testing.T) {
	provider := &mockProvider{
		chatFunc: func(call int, messages []Message, tools []Tool) (*Response, error) {
			if call == 1 {
				if len(tools) != 1 || tools[0].Name != "stock_data_tool" {
					t.Errorf("tools not passed: %+v", tools)
				}
				return &Response{
					ToolCalls: []ToolCall{{
						ID:        "call_1",
						Name:      "stock_data_tool",
						Arguments: json.RawMessage(`{"symbol":"AAPL"}`),
					}},
					FinishReason: FinishToolCalls,
					Usage:        Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
				}, nil
			}
			last := messages[len(messages)-1]
			if last.Role != RoleTool || last.Content != `{"latest_price":190}` {
				t.Errorf("tool result not fed back: %+v", last)
			}
			return &Response{
				Content:      "AAPL trades at $190.",
				FinishReason: FinishStop,
				Usage:        Usage{PromptTokens: 150, CompletionTokens: 40, TotalTokens: 190},
			}, nil
		},
	}

	registry := NewToolRegistry()
	registry.Register(Tool{
		Name: "stock_data_tool",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return `{"latest_price":190}`, nil
		},
	})

	var observed []string
	resp, msgs, err := RunToolLoop(context.Background(), provider, registry,
		[]Message{UserMessage("Analyze AAPL")},
		LoopConfig{MaxIterations: 5, OnTool: func(c ToolCall, r ToolResult) {
			observed = append(observed, c.Name+":"+string(c.Arguments))
		}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "AAPL trades at $190." {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 300 {
		t.Fatalf("usage should be summed over iterations, got %+v", resp.Usage)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if len(observed) != 1 || observed[0] != `stock_data_tool:{"symbol":"AAPL"}` {
		t.Fatalf("observer: got %v", observed)
	}
}

func TestRunToolLoopMaxIterations(t *testing.T) {
	provider := &mockProvider{
		chatFunc: func(call int, messages []Message, tools []Tool) (*Response, error) {
			return &Response{
				ToolCalls:    []ToolCall{{ID: "c1", Name: "fn", Arguments: json.RawMessage(`{}`)}},
				FinishReason: FinishToolCalls,
			}, nil
		},
	}
	registry := NewToolRegistry()
	registry.Register(Tool{
		Name:    "fn",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) { return "ok", nil },
	})

	_, _, err := RunToolLoop(context.Background(), provider, registry,
		[]Message{UserMessage("test")}, LoopConfig{MaxIterations: 3})
	if !errors.Is(err, ErrToolLoop) {
		t.Fatalf("expected ErrToolLoop, got: %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", provider.calls)
	}
}

func TestRunToolLoopProviderErrorNotRetried(t *testing.T) {
	provider := &mockProvider{
		chatFunc: func(call int, messages []Message, tools []Tool) (*Response, error) {
			return nil, ErrRateLimit
		},
	}
	_, _, err := RunToolLoop(context.Background(), provider, nil,
		[]Message{UserMessage("x")}, LoopConfig{})
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("provider errors must not be retried, got %d calls", provider.calls)
	}
}

func TestRunToolLoopCanceled(t *testing.T) {
	provider := &mockProvider{
		chatFunc: func(call int, messages []Message, tools []Tool) (*Response, error) {
			return &Response{Content: "unreachable"}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := RunToolLoop(ctx, provider, nil, nil, LoopConfig{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatal("canceled loop should not call the provider")
	}
}

// ════════════════════════════════════════════════════════════════════
// openai.go: OpenAI-compatible client
// ════════════════════════════════════════════════════════════════════

func TestOpenAIProviderNew(t *testing.T) {
	if _, err := NewOpenAIProvider(""); err != ErrNoAPIKey {
		t.Fatalf("expected ErrNoAPIKey, got: %v", err)
	}

	p, err := NewOpenAIProvider("key", WithModel("Meta-Llama-3.3-70B-Instruct"), WithBaseURL("http://custom/"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai" || p.Model() != "Meta-Llama-3.3-70B-Instruct" || p.baseURL != "http://custom" {
		t.Fatalf("unexpected config: %+v", p)
	}

	d, _ := NewOpenAIProvider("key")
	if d.baseURL != DefaultBaseURL || d.Model() != DefaultModel {
		t.Fatalf("unexpected defaults: %s %s", d.baseURL, d.Model())
	}
}

func TestOpenAIChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sn-test" {
			t.Error("missing auth header")
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != DefaultModel {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if len(req.Messages) != 2 || len(req.Tools) != 1 || req.Tools[0].Type != "function" {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Temperature == nil || *req.Temperature != 0.2 {
			t.Error("expected temperature 0.2")
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []wireChoice{{
				Message:      wireMessage{Role: "assistant", Content: "AAPL looks fairly valued."},
				FinishReason: "stop",
			}},
			Usage: Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
		})
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("sn-test", WithBaseURL(server.URL))
	resp, err := p.Chat(context.Background(),
		[]Message{SystemMessage("You are an analyst."), UserMessage("Analyze AAPL")},
		[]Tool{{Name: "stock_data_tool", Parameters: ObjectSchema("", map[string]*JSONSchema{"symbol": StringProp("ticker")}, "symbol")}},
		&ChatOptions{Temperature: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "AAPL looks fairly valued." || resp.Usage.TotalTokens != 30 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Model != DefaultModel {
		t.Fatalf("model should fall back to requested model, got %q", resp.Model)
	}
	if resp.FinishReason != FinishStop {
		t.Fatalf("expected stop, got %s", resp.FinishReason)
	}
}

func TestOpenAIChatWithToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []wireChoice{{
				Message: wireMessage{
					Role: "assistant",
					ToolCalls: []wireToolCall{
						{ID: "call_abc", Type: "function", Function: wireFuncCall{Name: "stock_data_tool", Arguments: `{"symbol":"AAPL"}`}},
						{ID: "call_def", Type: "function", Function: wireFuncCall{Name: "stock_news_tool", Arguments: ``}},
					},
				},
				FinishReason: "tool_calls",
			}},
		})
	}))
	defer server.Close()

	p, _ := NewOpenAIProvider("sn-test", WithBaseURL(server.URL))
	resp, err := p.Chat(context.Background(), []Message{UserMessage("AAPL")}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 2 || resp.ToolCalls[0].ID != "call_abc" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if string(resp.ToolCalls[1].Arguments) != "{}" {
		t.Fatalf("empty arguments should become {}, got %s", resp.ToolCalls[1].Arguments)
	}
	if resp.FinishReason != FinishToolCalls {
		t.Fatalf("expected tool_calls finish, got %s", resp.FinishReason)
	}
}

func TestOpenAIErrorHandling(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", 401, `{"error":{"message":"invalid key"}}`, ErrNoAPIKey},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, ErrRateLimit},
		{"unknown model", 404, `{"error":{"message":"model not found"}}`, ErrInvalidModel},
		{"context length", 400, `{"error":{"message":"maximum context length exceeded"}}`, ErrContextLength},
		{"server error", 503, `upstream unavailable`, ErrProviderDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p, _ := NewOpenAIProvider("sn-test", WithBaseURL(server.URL))
			_, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOpenAIPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") == "Bearer bad" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	good, _ := NewOpenAIProvider("good", WithBaseURL(server.URL))
	if err := good.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	bad, _ := NewOpenAIProvider("bad", WithBaseURL(server.URL))
	if err := bad.Ping(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]FinishReason{
		"stop":          FinishStop,
		"eos":           FinishStop,
		"tool_calls":    FinishToolCalls,
		"function_call": FinishToolCalls,
		"length":        FinishLength,
		"other":         FinishReason("other"),
	}
	for in, want := range tests {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// eino.go: eino adapter
// ════════════════════════════════════════════════════════════════════

// fakeChatModel implements model.ToolCallingChatModel.
type fakeChatModel struct {
	bound    []*schema.ToolInfo
	received []*schema.Message
	reply    *schema.Message
	err      error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.received = input
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.bound = tools
	return f, nil
}

func TestEinoProviderChat(t *testing.T) {
	fake := &fakeChatModel{reply: &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_1",
			Function: schema.FunctionCall{Name: "stock_data_tool", Arguments: `{"symbol":"MSFT"}`},
		}},
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "tool_calls",
			Usage:        &schema.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		},
	}}
	p := NewEinoProviderFromModel(fake, "test-model")
	if p.Name() != ProviderEino || p.Model() != "test-model" {
		t.Fatalf("unexpected identity: %s %s", p.Name(), p.Model())
	}

	tools := []Tool{{
		Name:       "stock_data_tool",
		Parameters: ObjectSchema("", map[string]*JSONSchema{"symbol": StringProp("ticker")}, "symbol"),
	}}
	resp, err := p.Chat(context.Background(), []Message{
		SystemMessage("sys"),
		AssistantToolCallMessage("", []ToolCall{{ID: "prev", Name: "stock_data_tool", Arguments: json.RawMessage(`{}`)}}),
		ToolResultMessage("prev", "stock_data_tool", "{}"),
	}, tools, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.bound) != 1 || fake.bound[0].Name != "stock_data_tool" || fake.bound[0].ParamsOneOf == nil {
		t.Fatalf("tools not bound: %+v", fake.bound)
	}
	if len(fake.received) != 3 || fake.received[2].Role != schema.Tool || fake.received[2].ToolCallID != "prev" {
		t.Fatalf("messages not converted: %+v", fake.received)
	}
	if len(resp.ToolCalls) != 1 || string(resp.ToolCalls[0].Arguments) != `{"symbol":"MSFT"}` {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.FinishReason != FinishToolCalls || resp.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEinoProviderError(t *testing.T) {
	p := NewEinoProviderFromModel(&fakeChatModel{err: errors.New("boom")}, "m")
	if _, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil, nil); !errors.Is(err, ErrProviderDown) {
		t.Fatalf("expected ErrProviderDown, got %v", err)
	}
	if err := p.Ping(context.Background()); !errors.Is(err, ErrProviderDown) {
		t.Fatalf("expected ErrProviderDown from Ping, got %v", err)
	}

	empty := NewEinoProviderFromModel(&fakeChatModel{}, "m")
	if _, err := empty.Chat(context.Background(), nil, nil, nil); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// factory.go
// ════════════════════════════════════════════════════════════════════

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.APIKey = "key"
	cfg.LLM.Model = "m1"

	p, err := NewProvider(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != ProviderOpenAI || p.Model() != "m1" {
		t.Fatalf("unexpected provider: %s %s", p.Name(), p.Model())
	}

	cfg.LLM.Provider = "bogus"
	if _, err := NewProvider(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg.LLM.APIKey = ""
	if _, err := NewProvider(context.Background(), cfg, zerolog.Nop()); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}
