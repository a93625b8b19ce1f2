package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/agent/prompts"
)

// Status of a batch entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// BatchEntry is the outcome for one input symbol. Analysis holds the final
// report text on success.
type BatchEntry struct {
	Symbol    string    `json:"symbol"`
	Status    Status    `json:"status"`
	Analysis  string    `json:"analysis,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}

// Runner runs one symbol through the pipeline.
type Runner interface {
	Run(ctx context.Context, symbol string, rt prompts.ReportType) *Result
}

// Batch runs symbols one after another.
type Batch struct {
	runner  Runner
	onEntry func(index int, entry BatchEntry)
	logger  zerolog.Logger
	now     func() time.Time
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// OnEntry is called after each symbol completes, in input order.
func OnEntry(fn func(index int, entry BatchEntry)) BatchOption {
	return func(b *Batch) { b.onEntry = fn }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l zerolog.Logger) BatchOption { return func(b *Batch) { b.logger = l } }

// WithBatchClock overrides time.Now.
func WithBatchClock(now func() time.Time) BatchOption { return func(b *Batch) { b.now = now } }

// NewBatch creates a batch runner.
func NewBatch(r Runner, opts ...BatchOption) *Batch {
	b := &Batch{runner: r, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run returns exactly one entry per symbol, in input order. Duplicates are
// run again. Once ctx is done the remaining symbols are marked as errors
// without being run.
func (b *Batch) Run(ctx context.Context, symbols []string, rt prompts.ReportType) []BatchEntry {
	entries := make([]BatchEntry, 0, len(symbols))
	for i, sym := range symbols {
		var entry BatchEntry
		if err := ctx.Err(); err != nil {
			entry = BatchEntry{
				Symbol:    sym,
				Status:    StatusError,
				Error:     fmt.Sprintf("Error analyzing %s: batch %v", sym, err),
				Timestamp: b.now(),
			}
		} else {
			entry = b.entry(ctx, sym, rt)
		}
		entries = append(entries, entry)
		b.logger.Info().
			Int("index", i).
			Str("symbol", sym).
			Str("status", string(entry.Status)).
			Msg("batch entry complete")
		if b.onEntry != nil {
			b.onEntry(i, entry)
		}
	}
	return entries
}

func (b *Batch) entry(ctx context.Context, sym string, rt prompts.ReportType) BatchEntry {
	res := b.runner.Run(ctx, sym, rt)
	e := BatchEntry{Symbol: sym, Timestamp: b.now(), RunID: res.RunID}
	if res.OK() {
		e.Status = StatusSuccess
		e.Analysis = res.Report
	} else {
		e.Status = StatusError
		e.Error = res.Error
	}
	return e
}

// Summary counts successes and failures.
func Summary(entries []BatchEntry) (ok, failed int) {
	for _, e := range entries {
		if e.Status == StatusSuccess {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
