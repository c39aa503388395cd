package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Smart-ID flow metrics.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
}

// New creates and registers the Smart-ID metrics.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idmask_smartid_flow_transitions_total",
			Help: "State machine transitions by entered state",
		}, []string{"state"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idmask_smartid_provider_call_duration_seconds",
			Help:    "Latency of relying party API calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 40},
		}, []string{"operation", "outcome"}),
	}
}

// ObserveTransition counts a flow entering state.
func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

// ObserveProviderCall records one relying party call.
func (m *Metrics) ObserveProviderCall(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderLatency.WithLabelValues(operation, outcome).Observe(d.Seconds())
}
