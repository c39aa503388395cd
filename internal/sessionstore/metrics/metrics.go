package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session store gauges and counters.
type Metrics struct {
	Evictions *prometheus.CounterVec
	Size      *prometheus.GaugeVec
	Sweeps    *prometheus.CounterVec
}

// New creates and registers the session store metrics.
func New() *Metrics {
	return &Metrics{
		Evictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idmask_session_store_evictions_total",
			Help: "Entries evicted by the sweeper, by namespace",
		}, []string{"namespace"}),
		Size: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idmask_session_store_size",
			Help: "Entries held after the last sweep, by namespace",
		}, []string{"namespace"}),
		Sweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idmask_session_store_sweeps_total",
			Help: "Sweep runs by namespace and outcome",
		}, []string{"namespace", "outcome"}),
	}
}

// RecordSweep records one successful sweep.
func (m *Metrics) RecordSweep(namespace string, evicted, size int) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(namespace).Add(float64(evicted))
	m.Size.WithLabelValues(namespace).Set(float64(size))
	m.Sweeps.WithLabelValues(namespace, "ok").Inc()
}

// RecordSweepError records a failed sweep.
func (m *Metrics) RecordSweepError(namespace string) {
	if m == nil {
		return
	}
	m.Sweeps.WithLabelValues(namespace, "error").Inc()
}
