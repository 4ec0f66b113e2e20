// Package metrics exposes Prometheus collectors for interpreter turns.
//
// Collectors are registered on the registry passed to New, never on the
// global default registry, so several interpreters (and tests) can coexist
// in one process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "air"

// Return code classes used as the "result" label.
const (
	ResultSuccess     = "success"
	ResultCatchable   = "catchable"
	ResultUncatchable = "uncatchable"
	ResultPreparation = "preparation"
	ResultFinalize    = "finalization"
)

// Metrics holds the interpreter collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	turns        *prometheus.CounterVec
	callRequests prometheus.Counter
	nextPeers    prometheus.Counter
	traceLength  prometheus.Histogram
	turnDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "turns_total",
			Help:      "Interpreter turns by result class",
		}, []string{"result"}),
		callRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "call_requests_total",
			Help:      "Call requests handed to the host",
		}),
		nextPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "next_peers_total",
			Help:      "Peers a particle was routed to",
		}),
		traceLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "trace_length",
			Help:      "Length of the outgoing trace",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one interpreter turn",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
	}
	reg.MustRegister(m.turns, m.callRequests, m.nextPeers, m.traceLength, m.turnDuration)
	return m
}

// Turn describes one finished interpreter turn.
type Turn struct {
	Result       string
	TraceLength  int
	CallRequests int
	NextPeers    int
	Duration     time.Duration
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(t Turn) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(t.Result).Inc()
	m.callRequests.Add(float64(t.CallRequests))
	m.nextPeers.Add(float64(t.NextPeers))
	m.traceLength.Observe(float64(t.TraceLength))
	m.turnDuration.Observe(t.Duration.Seconds())
}
