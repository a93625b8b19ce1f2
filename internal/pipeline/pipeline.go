// Package pipeline runs the two-stage analysis: an analyst agent with
// market data tools produces an analysis, then a writer agent turns it into
// a report. Runs are sequential, never retried, and always end in a Result
// the caller can display.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/agent"
	"github.com/seenimoa/finanalyst/internal/agent/prompts"
	"github.com/seenimoa/finanalyst/internal/llm"
	"github.com/seenimoa/finanalyst/internal/logging"
	"github.com/seenimoa/finanalyst/pkg/utils"
)

// State is a pipeline run state.
type State string

const (
	StateStart         State = "START"
	StateStage1Running State = "STAGE1_RUNNING"
	StateStage1Done    State = "STAGE1_DONE"
	StateStage2Running State = "STAGE2_RUNNING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

var transitions = map[State][]State{
	StateStart:         {StateStage1Running},
	StateStage1Running: {StateStage1Done, StateFailed},
	StateStage1Done:    {StateStage2Running},
	StateStage2Running: {StateDone, StateFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Stage names where a run can fail.
const (
	StageValidation = "validation"
	StageAnalysis   = "analysis"
	StageReport     = "report"
)

// Event reports progress of a run.
type Event struct {
	RunID   string    `json:"run_id"`
	Symbol  string    `json:"symbol"`
	State   State     `json:"state"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Observer receives run events synchronously.
type Observer func(Event)

// Request selects what one run produces. An empty Analysis selects
// prompts.KindStockAnalysis. Context is handed to the analysis template: a
// peer list for sector comparison, a look-back period for technical
// analysis.
type Request struct {
	Symbol     string
	ReportType prompts.ReportType
	Analysis   prompts.Kind
	Context    string
}

// Result is the outcome of one run. Error is set, and Report empty, when
// State is StateFailed. The stage-1 analysis text only feeds stage 2 and
// is not kept.
type Result struct {
	RunID        string             `json:"run_id"`
	Symbol       string             `json:"symbol"`
	ReportType   prompts.ReportType `json:"report_type"`
	AnalysisKind prompts.Kind       `json:"analysis_kind"`
	State        State              `json:"state"`
	Report       string             `json:"report,omitempty"`
	Error        string             `json:"error,omitempty"`
	FailedStage  string             `json:"failed_stage,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration"`
	Tokens       int                `json:"tokens"`
	ToolCalls    int                `json:"tool_calls"`
}

// OK reports whether the run produced a report.
func (r *Result) OK() bool { return r.State == StateDone }

// Pipeline runs analyses. It is safe for concurrent use; each Run builds
// its own agents.
type Pipeline struct {
	crew     agent.CrewConfig
	metrics  *Metrics
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver sets the default event observer.
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New creates a Pipeline around the shared agent configuration.
func New(crew agent.CrewConfig, opts ...Option) *Pipeline {
	p := &Pipeline{crew: crew, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run analyzes symbol and writes a report of type rt.
func (p *Pipeline) Run(ctx context.Context, symbol string, rt prompts.ReportType) *Result {
	return p.RunWithObserver(ctx, symbol, rt, nil)
}

// RunWithObserver is Run with an extra observer for this run only.
func (p *Pipeline) RunWithObserver(ctx context.Context, symbol string, rt prompts.ReportType, obs Observer) *Result {
	return p.Execute(ctx, Request{Symbol: symbol, ReportType: rt}, obs)
}

// Execute runs req. obs, when non-nil, receives this run's events in
// addition to the pipeline observer.
func (p *Pipeline) Execute(ctx context.Context, req Request, obs Observer) *Result {
	r := &run{
		p:       p,
		obs:     obs,
		context: req.Context,
		result: &Result{
			RunID:        uuid.New().String(),
			Symbol:       req.Symbol,
			ReportType:   req.ReportType,
			AnalysisKind: req.Analysis,
			State:        StateStart,
			StartedAt:    p.now(),
		},
	}
	r.logger = logging.WithRunID(logging.WithSymbol(p.logger, req.Symbol), r.result.RunID)

	kind, err := validate(req)
	if err != nil {
		r.reject(err)
		return r.result
	}
	r.result.AnalysisKind = kind

	r.execute(ctx)
	r.result.Duration = p.now().Sub(r.result.StartedAt)
	p.metrics.observeRun(r.result)
	r.logger.Info().
		Str("state", string(r.result.State)).
		Dur("duration", r.result.Duration).
		Int("tokens", r.result.Tokens).
		Msg("pipeline finished")
	return r.result
}

func validate(req Request) (prompts.Kind, error) {
	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		return "", err
	}
	if _, err := prompts.ParseReportType(string(req.ReportType)); err != nil {
		return "", err
	}
	return prompts.ParseAnalysisKind(string(req.Analysis))
}

type run struct {
	p       *Pipeline
	obs     Observer
	context string
	result  *Result
	logger  zerolog.Logger
}

func (r *run) emit(msg string) {
	ev := Event{RunID: r.result.RunID, Symbol: r.result.Symbol, State: r.result.State, Message: msg, Time: r.p.now()}
	if r.p.observer != nil {
		r.p.observer(ev)
	}
	if r.obs != nil {
		r.obs(ev)
	}
}

func (r *run) transition(to State, msg string) {
	if !CanTransition(r.result.State, to) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.result.State, to))
	}
	r.result.State = to
	r.logger.Debug().Str("state", string(to)).Msg(msg)
	r.emit(msg)
}

// reject fails a run whose input never reached the state machine.
func (r *run) reject(err error) {
	r.result.State = StateFailed
	r.result.FailedStage = StageValidation
	r.result.Error = err.Error()
	r.emit(r.result.Error)
	r.p.metrics.observeRun(r.result)
	r.logger.Warn().Err(err).Msg("pipeline input rejected")
}

func (r *run) fail(stage string, err error) {
	r.result.Report = ""
	r.result.FailedStage = stage
	r.result.Error = displayError(r.result.Symbol, err)
	r.transition(StateFailed, r.result.Error)
}

func (r *run) execute(ctx context.Context) {
	sym := r.result.Symbol
	crew := r.p.crew
	crew.Logger = r.logger
	userTool := crew.OnTool
	crew.OnTool = func(call llm.ToolCall, res llm.ToolResult) {
		msg := fmt.Sprintf("tool %s called", call.Name)
		if res.Err != nil {
			msg = fmt.Sprintf("tool %s failed: %v", call.Name, res.Err)
		}
		r.emit(msg)
		if userTool != nil {
			userTool(call, res)
		}
	}

	// Stage 1: analysis with live data.
	r.transition(StateStage1Running, fmt.Sprintf("analyzing %s", sym))
	task, err := prompts.Render(r.result.AnalysisKind, sym, r.context)
	if err != nil {
		r.fail(StageAnalysis, err)
		return
	}
	start := r.p.now()
	analysis, err := agent.NewAnalyst(crew, sym).Run(ctx, task)
	r.record(StageAnalysis, start, analysis)
	if err != nil {
		r.fail(StageAnalysis, err)
		return
	}
	r.transition(StateStage1Done, "analysis complete")

	// Stage 2: report from the analysis text only.
	r.transition(StateStage2Running, fmt.Sprintf("writing %s", r.result.ReportType))
	task, err = prompts.Render(r.result.ReportType.Kind(), sym, analysis.Content)
	if err != nil {
		r.fail(StageReport, err)
		return
	}
	start = r.p.now()
	report, err := agent.NewWriter(crew).Run(ctx, task)
	r.record(StageReport, start, report)
	if err != nil {
		r.fail(StageReport, err)
		return
	}
	r.result.Report = report.Content
	r.transition(StateDone, "report complete")
}

func (r *run) record(stage string, start time.Time, res *agent.Result) {
	tokens := 0
	if res != nil {
		tokens = res.Tokens
		r.result.Tokens += res.Tokens
		r.result.ToolCalls += res.ToolCalls
	}
	r.p.metrics.observeStage(stage, r.p.now().Sub(start), tokens)
}

// displayError turns err into the message shown to the user.
func displayError(symbol string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Error analyzing %s: timed out", symbol)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Error analyzing %s: canceled", symbol)
	case errors.Is(err, llm.ErrNoAPIKey):
		return fmt.Sprintf("Error analyzing %s: the generation backend rejected the API key", symbol)
	}
	return fmt.Sprintf("Error analyzing %s: %v", symbol, err)
}
