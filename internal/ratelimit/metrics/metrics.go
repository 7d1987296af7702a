package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
	Degraded  prometheus.Gauge
	Errors    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carepilot_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome (allowed, rejected, failed_open)",
		}, []string{"outcome"}),
		Degraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "carepilot_ratelimit_degraded",
			Help: "1 while the shared counter is unavailable and the in-process fallback is serving",
		}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carepilot_ratelimit_counter_errors_total",
			Help: "Total number of failed shared counter calls",
		}),
	}
}

func (m *Metrics) IncrementDecision(outcome string) {
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementErrors() {
	m.Errors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
