package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the approval workflow.
type Metrics struct {
	registry *prometheus.Registry

	// Transition requests by action and outcome
	Transitions *prometheus.CounterVec

	// Time spent evaluating and committing a transition request
	TransitionLatency prometheus.Histogram
}

// New creates a Metrics instance backed by its own registry, with the Go
// runtime and process collectors included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "travel_approval_transitions_total",
			Help: "Total transition requests by action and outcome",
		}, []string{"action", "outcome"}),

		TransitionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "travel_approval_transition_duration_seconds",
			Help:    "Duration of transition requests including the status write",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveTransition records one transition request.
func (m *Metrics) ObserveTransition(action, outcome string, elapsed time.Duration) {
	if m != nil {
		m.Transitions.WithLabelValues(action, outcome).Inc()
		m.TransitionLatency.Observe(elapsed.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
