// Package metrics exposes Prometheus instrumentation for pipeline runs and
// an HTTP server for /metrics and /healthz.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds all Prometheus metrics for pipeline runs.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	CandlesRead    prometheus.Counter
	CandlesDropped prometheus.Counter
	Issues         *prometheus.CounterVec // labels: stage
	Signals        *prometheus.CounterVec // labels: strategy, direction
	StageDur       *prometheus.HistogramVec
	PersistTotal   *prometheus.CounterVec // labels: sink, result
	PersistDur     *prometheus.HistogramVec
	Runs           *prometheus.CounterVec // labels: pipeline, result
	RunDur         *prometheus.HistogramVec
	LastRunSuccess *prometheus.GaugeVec // labels: pipeline; unix seconds

	// Circuit breaker state of store writers (0=closed, 1=open, 2=half-open)
	BreakerState *prometheus.GaugeVec // labels: store
}

// NewPipeline creates the pipeline metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		CandlesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_candles_read_total",
			Help: "Candles pulled from the source",
		}),
		CandlesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_candles_dropped_total",
			Help: "Candles dropped by a stage before the end of the chain",
		}),
		Issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_issues_total",
			Help: "Recoverable issues absorbed at a stage boundary",
		}, []string{"stage"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_signals_total",
			Help: "Strategy signals produced",
		}, []string{"strategy", "direction"}),
		StageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Per-candle processing latency by stage",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.01},
		}, []string{"stage"}),
		PersistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_persist_total",
			Help: "Candle writes by sink and result",
		}, []string{"sink", "result"}),
		PersistDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_persist_duration_seconds",
			Help:    "Candle write latency by sink",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by result",
		}, []string{"pipeline", "result"}),
		RunDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Wall time of a full pipeline run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"pipeline"}),
		LastRunSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}, []string{"pipeline"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_store_circuit_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"store"}),
	}

	reg.MustRegister(
		m.CandlesRead,
		m.CandlesDropped,
		m.Issues,
		m.Signals,
		m.StageDur,
		m.PersistTotal,
		m.PersistDur,
		m.Runs,
		m.RunDur,
		m.LastRunSuccess,
		m.BreakerState,
	)

	return m
}

func (m *Pipeline) ObserveRead() {
	if m == nil {
		return
	}
	m.CandlesRead.Inc()
}

func (m *Pipeline) ObserveDrop() {
	if m == nil {
		return
	}
	m.CandlesDropped.Inc()
}

func (m *Pipeline) ObserveIssue(stage string) {
	if m == nil {
		return
	}
	m.Issues.WithLabelValues(stage).Inc()
}

func (m *Pipeline) ObserveSignal(strategy, direction string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(strategy, direction).Inc()
}

func (m *Pipeline) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDur.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Pipeline) ObservePersist(sink string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PersistTotal.WithLabelValues(sink, result).Inc()
	m.PersistDur.WithLabelValues(sink).Observe(d.Seconds())
}

func (m *Pipeline) ObserveRun(pipeline string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.LastRunSuccess.WithLabelValues(pipeline).Set(float64(time.Now().Unix()))
	}
	m.Runs.WithLabelValues(pipeline, result).Inc()
	m.RunDur.WithLabelValues(pipeline).Observe(d.Seconds())
}

// SetBreakerState records a store's circuit breaker state.
func (m *Pipeline) SetBreakerState(store string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(store).Set(float64(state))
}
