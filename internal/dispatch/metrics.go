package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Executions *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carepilot_dispatch_executions_total",
			Help: "Action executions by action and outcome kind (ok on success)",
		}, []string{"action", "outcome"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carepilot_dispatch_duration_seconds",
			Help:    "Action execution latency including audit writes",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
	}
}

func (m *Metrics) observe(action, outcome string, seconds float64) {
	m.Executions.WithLabelValues(action, outcome).Inc()
	m.Duration.WithLabelValues(action).Observe(seconds)
}
