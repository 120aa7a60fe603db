package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch operations recorded in the "op" label.
const (
	opSelect    = "select"
	opAsk       = "ask"
	opMatch     = "match"
	opCall      = "call"
	opAggregate = "aggregate"
)

// Metrics holds Prometheus metrics for member dispatches. A nil *Metrics
// records nothing.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchErrors   *prometheus.CounterVec
	boundJoinBatches *prometheus.CounterVec
	boundJoinRows    *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them on registry.
// Returns nil if registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedq_engine_dispatch_total",
				Help: "Total number of requests sent to federation members",
			},
			[]string{"member", "op"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedq_engine_dispatch_duration_seconds",
				Help:    "Duration of member requests until the first response",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"member", "op"},
		),
		dispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedq_engine_dispatch_errors_total",
				Help: "Total number of failed member requests",
			},
			[]string{"member", "op"},
		),
		boundJoinBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedq_engine_bound_join_batches_total",
				Help: "Total number of bound-join batches dispatched",
			},
			[]string{"member"},
		),
		boundJoinRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedq_engine_bound_join_rows_total",
				Help: "Total number of left-hand rows sent in bound-join batches",
			},
			[]string{"member"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedq_engine_local_fallbacks_total",
				Help: "Total number of owned subtrees evaluated locally instead of pushed down",
			},
			[]string{"member"},
		),
	}
	registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.dispatchErrors,
		m.boundJoinBatches,
		m.boundJoinRows,
		m.fallbacks,
	)
	return m
}

// RecordDispatch records one member request.
func (m *Metrics) RecordDispatch(member, op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(member, op).Inc()
	m.dispatchDuration.WithLabelValues(member, op).Observe(duration.Seconds())
	if err != nil {
		m.dispatchErrors.WithLabelValues(member, op).Inc()
	}
}

// RecordBoundJoinBatch records a bound-join batch of rows left-hand rows.
func (m *Metrics) RecordBoundJoinBatch(member string, rows int) {
	if m == nil {
		return
	}
	m.boundJoinBatches.WithLabelValues(member).Inc()
	m.boundJoinRows.WithLabelValues(member).Add(float64(rows))
}

// RecordFallback records an owned subtree evaluated locally.
func (m *Metrics) RecordFallback(member string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(member).Inc()
}
