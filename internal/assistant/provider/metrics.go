package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Requests  *prometheus.CounterVec
	FirstByte prometheus.Histogram
	Retries   prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carepilot_provider_requests_total",
			Help: "Streaming completion requests by outcome",
		}, []string{"outcome"}),
		FirstByte: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepilot_provider_first_chunk_seconds",
			Help:    "Time until the first streamed chunk arrived",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		Retries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carepilot_provider_retries_total",
			Help: "Connection retries before the first chunk",
		}),
	}
}

func (m *Metrics) observe(outcome string, seconds float64) {
	m.Requests.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.FirstByte.Observe(seconds)
	}
}
