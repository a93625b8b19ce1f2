package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/finanalyst/internal/agent"
	"github.com/seenimoa/finanalyst/internal/agent/prompts"
	"github.com/seenimoa/finanalyst/internal/datasource"
	"github.com/seenimoa/finanalyst/internal/llm"
	"github.com/seenimoa/finanalyst/pkg/models"
)

// scriptedProvider answers stage 1 (tools offered) and stage 2 (no tools)
// with separate functions.
type scriptedProvider struct {
	mu       sync.Mutex
	calls    int
	writerIn []llm.Message
	analyst  func(call int, msgs []llm.Message) (*llm.Response, error)
	writer   func(msgs []llm.Message) (*llm.Response, error)
}

func (s *scriptedProvider) Name() string               { return "scripted" }
func (s *scriptedProvider) Model() string              { return "scripted-model" }
func (s *scriptedProvider) Ping(context.Context) error { return nil }

func (s *scriptedProvider) Chat(_ context.Context, msgs []llm.Message, tools []llm.Tool, _ *llm.ChatOptions) (*llm.Response, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if len(tools) > 0 {
		return s.analyst(call, msgs)
	}
	s.writerIn = msgs
	return s.writer(msgs)
}

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func text(content string, tokens int) *llm.Response {
	return &llm.Response{Content: content, FinishReason: llm.FinishStop, Usage: llm.Usage{TotalTokens: tokens}}
}

// happyProvider calls stock_data_tool once, then answers.
func happyProvider() *scriptedProvider {
	return &scriptedProvider{
		analyst: func(call int, msgs []llm.Message) (*llm.Response, error) {
			if msgs[len(msgs)-1].Role != llm.RoleTool {
				sym := "AAPL"
				if m := msgs[len(msgs)-1].Content; strings.Contains(m, "MSFT") {
					sym = "MSFT"
				}
				return &llm.Response{
					FinishReason: llm.FinishToolCalls,
					ToolCalls: []llm.ToolCall{{
						ID: "t1", Name: agent.ToolStockData, Arguments: json.RawMessage(`{"symbol":"` + sym + `"}`),
					}},
					Usage: llm.Usage{TotalTokens: 10},
				}, nil
			}
			return text("ANALYSIS: price is strong", 100), nil
		},
		writer: func([]llm.Message) (*llm.Response, error) {
			return text("# 📊 Report body", 200), nil
		},
	}
}

type countingMetrics struct {
	mu    sync.Mutex
	calls int
}

func (c *countingMetrics) Fetch(_ context.Context, symbol string) (*models.MetricsRecord, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if symbol == "ZZZZ" {
		return nil, &datasource.FetchError{Symbol: symbol, Kind: datasource.KindNotFound}
	}
	return &models.MetricsRecord{Symbol: symbol, Price: models.Some(100.0)}, nil
}

func (c *countingMetrics) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newPipeline(p llm.LLMProvider, src datasource.MetricsSource, opts ...Option) *Pipeline {
	return New(agent.CrewConfig{Provider: p, Metrics: src}, opts...)
}

func TestRunSuccess(t *testing.T) {
	prov := happyProvider()
	src := &countingMetrics{}
	var events []Event
	pl := newPipeline(prov, src, WithObserver(func(e Event) { events = append(events, e) }))

	res := pl.Run(context.Background(), "AAPL", prompts.InvestmentReport)

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, prompts.KindStockAnalysis, res.AnalysisKind)
	assert.Equal(t, "# 📊 Report body", res.Report)
	assert.Empty(t, res.Error)
	assert.Equal(t, 310, res.Tokens)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, 1, src.count())
	assert.Equal(t, 3, prov.callCount())
	assert.NotEmpty(t, res.RunID)

	// The writer sees the analysis text and nothing from the tools.
	require.Len(t, prov.writerIn, 2)
	assert.Contains(t, prov.writerIn[1].Content, "ANALYSIS: price is strong")
	assert.Contains(t, prov.writerIn[1].Content, "# 📊 AAPL Investment Analysis Report")

	var states []State
	for _, e := range events {
		assert.Equal(t, res.RunID, e.RunID)
		if len(states) == 0 || states[len(states)-1] != e.State {
			states = append(states, e.State)
		}
	}
	assert.Equal(t, []State{StateStage1Running, StateStage1Done, StateStage2Running, StateDone}, states)

	// The analysis text is handed to stage 2 and then dropped.
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "ANALYSIS: price is strong")
}

func TestExecuteAnalysisKind(t *testing.T) {
	prov := happyProvider()
	var firstTask string
	analyst := prov.analyst
	prov.analyst = func(call int, msgs []llm.Message) (*llm.Response, error) {
		if call == 1 {
			firstTask = msgs[len(msgs)-1].Content
		}
		return analyst(call, msgs)
	}

	res := newPipeline(prov, &countingMetrics{}).Execute(context.Background(), Request{
		Symbol:     "AAPL",
		ReportType: prompts.TechnicalReport,
		Analysis:   prompts.KindTechnicalAnalysis,
		Context:    "1y",
	}, nil)

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, prompts.KindTechnicalAnalysis, res.AnalysisKind)
	assert.Contains(t, firstTask, "technical analysis of AAPL over the last 1y")
	assert.Contains(t, prov.writerIn[1].Content, "ANALYSIS: price is strong")
}

func TestExecuteUnknownAnalysisKind(t *testing.T) {
	prov := happyProvider()
	src := &countingMetrics{}
	res := newPipeline(prov, src).Execute(context.Background(), Request{
		Symbol:     "AAPL",
		ReportType: prompts.InvestmentReport,
		Analysis:   prompts.RiskReport.Kind(),
	}, nil)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageValidation, res.FailedStage)
	assert.Contains(t, res.Error, "unknown prompt kind")
	assert.Zero(t, prov.callCount())
	assert.Zero(t, src.count())
}

func TestStage1FailureSkipsStage2(t *testing.T) {
	writerCalled := false
	prov := &scriptedProvider{
		analyst: func(int, []llm.Message) (*llm.Response, error) { return nil, llm.ErrProviderDown },
		writer: func([]llm.Message) (*llm.Response, error) {
			writerCalled = true
			return text("never", 1), nil
		},
	}
	res := newPipeline(prov, &countingMetrics{}).Run(context.Background(), "AAPL", prompts.RiskReport)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageAnalysis, res.FailedStage)
	assert.False(t, writerCalled, "stage 2 must not run after stage 1 fails")
	assert.Equal(t, 1, prov.callCount(), "no retries")
	assert.Empty(t, res.Report)
	assert.True(t, strings.HasPrefix(res.Error, "Error analyzing AAPL: "), res.Error)
}

func TestStage1EmptyOutputFails(t *testing.T) {
	prov := &scriptedProvider{
		analyst: func(int, []llm.Message) (*llm.Response, error) { return text("", 5), nil },
		writer:  func([]llm.Message) (*llm.Response, error) { return text("never", 1), nil },
	}
	res := newPipeline(prov, &countingMetrics{}).Run(context.Background(), "AAPL", prompts.InvestmentReport)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageAnalysis, res.FailedStage)
	assert.Contains(t, res.Error, "empty output")
	assert.Equal(t, 1, prov.callCount())
}

func TestStage2FailureDiscardsAnalysis(t *testing.T) {
	prov := happyProvider()
	prov.writer = func([]llm.Message) (*llm.Response, error) { return nil, errors.New("boom") }

	res := newPipeline(prov, &countingMetrics{}).Run(context.Background(), "AAPL", prompts.ExecutiveSummary)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageReport, res.FailedStage)
	assert.Empty(t, res.Report)
	assert.Contains(t, res.Error, "boom")
}

func TestInvalidInputMakesNoCalls(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		rt     prompts.ReportType
		want   string
	}{
		{"lowercase", "aapl", prompts.InvestmentReport, "invalid stock symbol"},
		{"too long", "ABCDEFGHIJK", prompts.InvestmentReport, "invalid stock symbol"},
		{"digits", "BRK1", prompts.InvestmentReport, "invalid stock symbol"},
		{"empty", "", prompts.InvestmentReport, "invalid stock symbol"},
		{"unknown report", "AAPL", prompts.ReportType("poem"), "unknown report type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := happyProvider()
			src := &countingMetrics{}
			res := newPipeline(prov, src).Run(context.Background(), tt.symbol, tt.rt)

			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, StageValidation, res.FailedStage)
			assert.Contains(t, res.Error, tt.want)
			assert.Zero(t, prov.callCount())
			assert.Zero(t, src.count())
		})
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prov := happyProvider()
	res := newPipeline(prov, &countingMetrics{}).Run(ctx, "AAPL", prompts.InvestmentReport)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "Error analyzing AAPL: canceled", res.Error)
	assert.Zero(t, prov.callCount())
}

func TestRunWithObserverAndClock(t *testing.T) {
	t0 := time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}
	var perRun []Event
	res := newPipeline(happyProvider(), &countingMetrics{}, WithClock(clock)).
		RunWithObserver(context.Background(), "AAPL", prompts.TechnicalReport, func(e Event) { perRun = append(perRun, e) })

	require.True(t, res.OK())
	assert.Equal(t, t0.Add(time.Second), res.StartedAt)
	assert.Positive(t, res.Duration)
	assert.NotEmpty(t, perRun)
	assert.Equal(t, StateDone, perRun[len(perRun)-1].State)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pl := newPipeline(happyProvider(), &countingMetrics{}, WithMetrics(m))

	pl.Run(context.Background(), "AAPL", prompts.InvestmentReport)
	pl.Run(context.Background(), "bad", prompts.InvestmentReport)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(string(StateDone), "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(string(StateFailed), StageValidation)))
	assert.Equal(t, 110.0, testutil.ToFloat64(m.tokens.WithLabelValues(StageAnalysis)))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.tokens.WithLabelValues(StageReport)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateStart, StateStage1Running))
	assert.True(t, CanTransition(StateStage1Running, StateFailed))
	assert.True(t, CanTransition(StateStage2Running, StateDone))
	assert.False(t, CanTransition(StateStart, StateStage2Running))
	assert.False(t, CanTransition(StateStage1Done, StateFailed))
	assert.False(t, CanTransition(StateDone, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateStart))
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateStage1Done.Terminal())
}
