package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeTracked = "tracked"
	outcomeDropped = "dropped"
	outcomeFailed  = "failed"
)

type Metrics struct {
	Records     *prometheus.CounterVec
	BreakerOpen prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Records: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carepilot_audit_ops_records_total",
			Help: "Operational audit records by outcome (tracked, dropped while the breaker is open, failed)",
		}, []string{"outcome"}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "carepilot_audit_ops_breaker_open",
			Help: "1 while the ops audit breaker is open",
		}),
	}
}

func (m *Metrics) observe(outcome string, breakerOpen bool) {
	m.Records.WithLabelValues(outcome).Inc()
	if breakerOpen {
		m.BreakerOpen.Set(1)
	} else {
		m.BreakerOpen.Set(0)
	}
}
