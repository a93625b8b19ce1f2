package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finanalyst",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by final state and failed stage.",
		}, []string{"state", "failed_stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finanalyst",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"stage"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finanalyst",
			Subsystem: "pipeline",
			Name:      "tokens_total",
			Help:      "LLM tokens consumed by stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.stageDuration, m.tokens)
	}
	return m
}

func (m *Metrics) observeRun(r *Result) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(r.State), r.FailedStage).Inc()
}

func (m *Metrics) observeStage(stage string, d time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if tokens > 0 {
		m.tokens.WithLabelValues(stage).Add(float64(tokens))
	}
}
